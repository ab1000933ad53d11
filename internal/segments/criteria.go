package segments

import (
	"encoding/json"
	"fmt"
	"slices"

	"ontology/internal/customers"
	"ontology/internal/rfm"
)

type CriterionKind string

const (
	KindMRRRange     CriterionKind = "mrr_range"
	KindTenureRange  CriterionKind = "tenure_range"
	KindCompanySizes CriterionKind = "company_sizes"
	KindRFMSegments  CriterionKind = "rfm_segments"
)

// Subject is what a criterion is evaluated against.
type Subject struct {
	MRR          float64
	TenureMonths int
	CompanySize  customers.CompanySize
	RFMSegment   rfm.Segment
}

// Criterion is one membership rule of a segment. The set of implementations
// is closed: MRRRange, TenureRange, CompanySizes, RFMSegments and Passthrough.
type Criterion interface {
	Kind() CriterionKind
	Matches(s Subject) bool
}

type MRRRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (MRRRange) Kind() CriterionKind { return KindMRRRange }

func (c MRRRange) Matches(s Subject) bool {
	return s.MRR >= c.Min && s.MRR <= c.Max
}

type TenureRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (TenureRange) Kind() CriterionKind { return KindTenureRange }

func (c TenureRange) Matches(s Subject) bool {
	return s.TenureMonths >= c.Min && s.TenureMonths <= c.Max
}

type CompanySizes struct {
	Sizes []customers.CompanySize `json:"sizes"`
}

func (CompanySizes) Kind() CriterionKind { return KindCompanySizes }

func (c CompanySizes) Matches(s Subject) bool {
	return slices.Contains(c.Sizes, s.CompanySize)
}

type RFMSegments struct {
	Segments []rfm.Segment `json:"segments"`
}

func (RFMSegments) Kind() CriterionKind { return KindRFMSegments }

// Matches lets unscored subjects through.
func (c RFMSegments) Matches(s Subject) bool {
	if s.RFMSegment == "" {
		return true
	}
	return slices.Contains(c.Segments, s.RFMSegment)
}

// Passthrough keeps a criterion of unknown kind intact across a
// load/save cycle. It never excludes anyone.
type Passthrough struct {
	Type string
	Raw  json.RawMessage
}

func (p Passthrough) Kind() CriterionKind { return CriterionKind(p.Type) }

func (Passthrough) Matches(Subject) bool { return true }

// Criteria is a conjunction; an empty list matches everyone.
type Criteria []Criterion

func (cs Criteria) Matches(s Subject) bool {
	for _, c := range cs {
		if !c.Matches(s) {
			return false
		}
	}
	return true
}

type envelope struct {
	Type string `json:"type"`
}

func (cs Criteria) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(cs))
	for _, c := range cs {
		raw, err := marshalCriterion(c)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

func marshalCriterion(c Criterion) (json.RawMessage, error) {
	if p, ok := c.(Passthrough); ok {
		return p.Raw, nil
	}
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s criterion: %w", c.Kind(), err)
	}
	// splice the discriminator into the object
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to marshal %s criterion: %w", c.Kind(), err)
	}
	kind, _ := json.Marshal(c.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}

func (cs *Criteria) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("criteria must be a list: %w", err)
	}

	out := make(Criteria, 0, len(raws))
	for _, raw := range raws {
		c, err := unmarshalCriterion(raw)
		if err != nil {
			return err
		}
		out = append(out, c)
	}
	*cs = out
	return nil
}

func unmarshalCriterion(raw json.RawMessage) (Criterion, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid criterion: %w", err)
	}

	var (
		c   Criterion
		err error
	)
	switch CriterionKind(env.Type) {
	case KindMRRRange:
		var v MRRRange
		err = json.Unmarshal(raw, &v)
		c = v
	case KindTenureRange:
		var v TenureRange
		err = json.Unmarshal(raw, &v)
		c = v
	case KindCompanySizes:
		var v CompanySizes
		err = json.Unmarshal(raw, &v)
		c = v
	case KindRFMSegments:
		var v RFMSegments
		err = json.Unmarshal(raw, &v)
		c = v
	default:
		kept := make(json.RawMessage, len(raw))
		copy(kept, raw)
		c = Passthrough{Type: env.Type, Raw: kept}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s criterion: %w", env.Type, err)
	}
	return c, nil
}
