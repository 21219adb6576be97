package resolver

// Mode is the addressing mode selected by the identifying parameter.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeAssetVersion
	ModeAsset
	ModeSystemObject
	ModeSystemObjectVersion
	ModeWorkflow
	ModeWorkflowReport
	ModeWorkflowSet
	ModeJobRun
)

// Query parameter names, one per addressing mode.
const (
	ParamSystemObject        = "idSystemObject"
	ParamSystemObjectVersion = "idSystemObjectVersion"
	ParamAsset               = "idAsset"
	ParamAssetVersion        = "idAssetVersion"
	ParamWorkflow            = "idWorkflow"
	ParamWorkflowReport      = "idWorkflowReport"
	ParamWorkflowSet         = "idWorkflowSet"
	ParamJobRun              = "idJobRun"
)

var params = []struct {
	name string
	mode Mode
}{
	{ParamSystemObject, ModeSystemObject},
	{ParamSystemObjectVersion, ModeSystemObjectVersion},
	{ParamAsset, ModeAsset},
	{ParamAssetVersion, ModeAssetVersion},
	{ParamWorkflow, ModeWorkflow},
	{ParamWorkflowReport, ModeWorkflowReport},
	{ParamWorkflowSet, ModeWorkflowSet},
	{ParamJobRun, ModeJobRun},
}

func (m Mode) String() string {
	switch m {
	case ModeAssetVersion:
		return "AssetVersion"
	case ModeAsset:
		return "Asset"
	case ModeSystemObject:
		return "SystemObject"
	case ModeSystemObjectVersion:
		return "SystemObjectVersion"
	case ModeWorkflow:
		return "Workflow"
	case ModeWorkflowReport:
		return "WorkflowReport"
	case ModeWorkflowSet:
		return "WorkflowSet"
	case ModeJobRun:
		return "JobRun"
	default:
		return "Unknown"
	}
}

// Param returns the query parameter name for the mode.
func (m Mode) Param() string {
	for _, p := range params {
		if p.mode == m {
			return p.name
		}
	}
	return ""
}
