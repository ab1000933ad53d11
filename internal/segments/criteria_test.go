package segments

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontology/internal/customers"
	"ontology/internal/rfm"
)

func TestCriteriaMatches(t *testing.T) {
	criteria := Criteria{
		MRRRange{Min: 100, Max: 500},
		TenureRange{Min: 6, Max: 24},
		CompanySizes{Sizes: []customers.CompanySize{customers.CompanySizeSMB, customers.CompanySizeMidMarket}},
		RFMSegments{Segments: []rfm.Segment{rfm.SegmentLoyalCustomers}},
	}
	subject := Subject{MRR: 250, TenureMonths: 12, CompanySize: customers.CompanySizeSMB, RFMSegment: rfm.SegmentLoyalCustomers}
	assert.True(t, criteria.Matches(subject))

	tooBig := subject
	tooBig.MRR = 900
	assert.False(t, criteria.Matches(tooBig))

	wrongSize := subject
	wrongSize.CompanySize = customers.CompanySizeEnterprise
	assert.False(t, criteria.Matches(wrongSize))

	wrongRFM := subject
	wrongRFM.RFMSegment = rfm.SegmentLost
	assert.False(t, criteria.Matches(wrongRFM))

	assert.True(t, Criteria{}.Matches(Subject{}))
}

func TestCriteriaJSONKeepsUnknownKinds(t *testing.T) {
	stored := `[
		{"type":"mrr_range","min":10,"max":20},
		{"type":"company_sizes","sizes":["smb"]},
		{"type":"industry","values":["fintech"]}
	]`

	var criteria Criteria
	require.NoError(t, json.Unmarshal([]byte(stored), &criteria))
	require.Len(t, criteria, 3)
	assert.Equal(t, MRRRange{Min: 10, Max: 20}, criteria[0])
	assert.Equal(t, KindCompanySizes, criteria[1].Kind())

	unknown, ok := criteria[2].(Passthrough)
	require.True(t, ok)
	assert.Equal(t, CriterionKind("industry"), unknown.Kind())
	assert.True(t, unknown.Matches(Subject{}))

	out, err := json.Marshal(criteria)
	require.NoError(t, err)
	assert.JSONEq(t, stored, string(out))
}

func TestCriteriaJSONRejectsMalformed(t *testing.T) {
	var criteria Criteria
	assert.Error(t, json.Unmarshal([]byte(`{"type":"mrr_range"}`), &criteria))
	assert.Error(t, json.Unmarshal([]byte(`[{"type":"mrr_range","min":"ten"}]`), &criteria))
}
