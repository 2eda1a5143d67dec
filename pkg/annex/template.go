package annex

import (
	"fmt"
	"strconv"
	"strings"
)

// TemplateURL is the pinned identifier of the versioned orchestration
// template that backs every annex stack. The template is an external
// artifact; the controller never edits it, only binds its parameters.
const TemplateURL = "https://annexctl-templates.s3.amazonaws.com/annex-stack-v4.json"

// Template parameter names. Together with the indexed pool triples
// below they form the complete parameter schema of the template.
const (
	ParamCentralManager = "CentralManager"
	ParamKeypairName    = "KeypairName"
	ParamLeaseMinutes   = "LeaseMinutes"
	ParamTotalSize      = "TotalSize"
	ParamCredentialURL  = "CredentialURL"
	ParamConfigURL      = "ConfigURL"
	ParamProject        = "Project"
	ParamNetworkID      = "NetworkID"
	ParamSubnetIDs      = "SubnetIDs"
)

// PoolParamNames returns the indexed parameter names for pool ordinal
// i (0-based ordinal, 1-based parameter suffix).
func PoolParamNames(i int) (image, instanceType, spotPrice string) {
	n := i + 1
	return fmt.Sprintf("ImageID%d", n),
		fmt.Sprintf("InstanceType%d", n),
		fmt.Sprintf("SpotPrice%d", n)
}

// TemplateParamKeys returns every parameter key in the template
// schema, in declaration order. Full-restatement updates must cover
// exactly this set.
func TemplateParamKeys() []string {
	keys := []string{
		ParamCentralManager,
		ParamKeypairName,
		ParamLeaseMinutes,
		ParamTotalSize,
		ParamCredentialURL,
		ParamConfigURL,
		ParamProject,
		ParamNetworkID,
		ParamSubnetIDs,
	}
	for i := 0; i < MaxResourcePools; i++ {
		image, instanceType, spotPrice := PoolParamNames(i)
		keys = append(keys, image, instanceType, spotPrice)
	}
	return keys
}

// BuildCreateParams binds a StackSpec to the template schema for the
// initial create. Unused pool slots are omitted and take the
// template's defaults.
func BuildCreateParams(spec *StackSpec) []Param {
	params := []Param{
		SetParam(ParamCentralManager, spec.CentralManager),
		SetParam(ParamKeypairName, spec.KeypairName),
		SetParam(ParamLeaseMinutes, strconv.Itoa(spec.LeaseMinutes)),
		SetParam(ParamTotalSize, strconv.Itoa(spec.TotalSize)),
		SetParam(ParamProject, spec.Project),
		SetParam(ParamNetworkID, spec.NetworkID),
		SetParam(ParamSubnetIDs, strings.Join(spec.SubnetIDs, ",")),
	}
	if spec.CredentialLocation != "" {
		params = append(params, SetParam(ParamCredentialURL, spec.CredentialLocation))
	}
	if spec.ConfigLocation != "" {
		params = append(params, SetParam(ParamConfigURL, spec.ConfigLocation))
	}
	for i, pool := range spec.Pools {
		image, instanceType, spotPrice := PoolParamNames(i)
		params = append(params, SetParam(image, pool.ImageID))
		params = append(params, SetParam(instanceType, pool.InstanceType))
		if pool.SpotPrice != "" {
			params = append(params, SetParam(spotPrice, pool.SpotPrice))
		}
	}
	return params
}

// BuildLeaseParams builds the full-restatement update that changes
// only the lease duration: every other parameter in the schema is
// explicitly marked as keeping its previous value.
func BuildLeaseParams(leaseMinutes int) []Param {
	var params []Param
	for _, key := range TemplateParamKeys() {
		if key == ParamLeaseMinutes {
			params = append(params, SetParam(key, strconv.Itoa(leaseMinutes)))
			continue
		}
		params = append(params, KeepParam(key))
	}
	return params
}
