package badger

import (
	"fmt"
	"strconv"
	"strings"
)

// Database Key Namespace Design
// ==============================
//
// Records and secondary indexes share one keyspace, separated by prefix.
// Numeric ids inside keys are zero-padded to 20 digits so lexical order
// matches numeric order, which lets index scans return results sorted.
//
// Data Type                Prefix   Key Format                         Value
// =========================================================================================
// System Object            "so:"    so:<id>                            SystemObject (CBOR)
// System Object Version    "sov:"   sov:<id>                           SystemObjectVersion (CBOR)
// Asset                    "as:"    as:<id>                            Asset (CBOR)
// Asset Version            "av:"    av:<id>                            AssetVersion (CBOR)
// Versions of an Asset     "avi:"   avi:<idAsset>:<version>            idAssetVersion
// Assets of an Owner       "aso:"   aso:<idSystemObject>:<idAsset>     (empty)
// Asset by Name            "asn:"   asn:<idSystemObject>:<assetKey>    idAsset
// Workflow                 "wf:"    wf:<id>                            Workflow (CBOR)
// Workflows of a Set       "wfs:"   wfs:<idWorkflowSet>:<idWorkflow>   (empty)
// Workflow Report          "wr:"    wr:<id>                            WorkflowReport (CBOR)
// Reports of a Workflow    "wri:"   wri:<idWorkflow>:<idReport>        (empty)
// Job Run                  "jr:"    jr:<id>                            JobRun (CBOR)
// Id Sequence              "seq:"   seq:id                             badger.Sequence lease
//
// Every prefix ends with ':' and no prefix is a prefix of another prefix plus
// ':', so range scans never bleed across namespaces.

const (
	prefixSystemObject        = "so:"
	prefixSystemObjectVersion = "sov:"
	prefixAsset               = "as:"
	prefixAssetVersion        = "av:"
	prefixAssetVersionIndex   = "avi:"
	prefixAssetOwnerIndex     = "aso:"
	prefixAssetNameIndex      = "asn:"
	prefixWorkflow            = "wf:"
	prefixWorkflowSetIndex    = "wfs:"
	prefixWorkflowReport      = "wr:"
	prefixWorkflowReportIndex = "wri:"
	prefixJobRun              = "jr:"

	keySequence = "seq:id"
)

func pad(id int64) string {
	return fmt.Sprintf("%020d", id)
}

func recordKey(prefix string, id int64) []byte {
	return []byte(prefix + pad(id))
}

func keySystemObject(id int64) []byte        { return recordKey(prefixSystemObject, id) }
func keySystemObjectVersion(id int64) []byte { return recordKey(prefixSystemObjectVersion, id) }
func keyAsset(id int64) []byte               { return recordKey(prefixAsset, id) }
func keyAssetVersion(id int64) []byte        { return recordKey(prefixAssetVersion, id) }
func keyWorkflow(id int64) []byte            { return recordKey(prefixWorkflow, id) }
func keyWorkflowReport(id int64) []byte      { return recordKey(prefixWorkflowReport, id) }
func keyJobRun(id int64) []byte              { return recordKey(prefixJobRun, id) }

// indexPrefix returns "<prefix><parent>:" used for range scans.
func indexPrefix(prefix string, parent int64) []byte {
	return []byte(prefix + pad(parent) + ":")
}

func keyAssetVersionIndex(idAsset int64, version int) []byte {
	return []byte(prefixAssetVersionIndex + pad(idAsset) + ":" + pad(int64(version)))
}

func keyAssetOwnerIndex(owner, idAsset int64) []byte {
	return []byte(prefixAssetOwnerIndex + pad(owner) + ":" + pad(idAsset))
}

func keyAssetNameIndex(owner int64, assetKey string) []byte {
	return []byte(prefixAssetNameIndex + pad(owner) + ":" + assetKey)
}

func keyWorkflowSetIndex(set, idWorkflow int64) []byte {
	return []byte(prefixWorkflowSetIndex + pad(set) + ":" + pad(idWorkflow))
}

func keyWorkflowReportIndex(idWorkflow, idReport int64) []byte {
	return []byte(prefixWorkflowReportIndex + pad(idWorkflow) + ":" + pad(idReport))
}

// trailingID parses the id after the last ':' of an index key.
func trailingID(key []byte) (int64, error) {
	s := string(key)
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return 0, fmt.Errorf("malformed index key %q", s)
	}
	return strconv.ParseInt(s[idx+1:], 10, 64)
}
