package meta

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Sidecar layout:
//
//	{
//		"hash": "...",
//		"timestamp": 0,
//		"sections": [{
//			"name": "Allies",
//			"pages": [12, 13],
//			"span": null | {"range": [s, e]} | {"from": s},
//			"kind": "discipline" | {"merit": null | "social"},
//			"ops": [{"delete": {"range": [first, last]}}]
//		}]
//	}

type recordJSON struct {
	Hash      string              `json:"hash"`
	Timestamp int64               `json:"timestamp"`
	Sections  []SectionDefinition `json:"sections"`
}

func (m SourceMeta) MarshalJSON() ([]byte, error) {
	out := recordJSON{Hash: m.Hash, Timestamp: m.Timestamp, Sections: m.Sections}
	if out.Sections == nil {
		out.Sections = []SectionDefinition{}
	}
	return json.Marshal(out)
}

func (m *SourceMeta) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Sections == nil {
		in.Sections = []SectionDefinition{}
	}
	*m = SourceMeta{Hash: in.Hash, Timestamp: in.Timestamp, Sections: in.Sections}
	return nil
}

type sectionJSON struct {
	Name  string    `json:"name"`
	Pages PageRange `json:"pages"`
	Span  *Span     `json:"span"`
	Kind  Kind      `json:"kind"`
	Ops   []Op      `json:"ops"`
}

func (d SectionDefinition) MarshalJSON() ([]byte, error) {
	out := sectionJSON(d)
	if out.Ops == nil {
		out.Ops = []Op{}
	}
	return json.Marshal(out)
}

func (d *SectionDefinition) UnmarshalJSON(data []byte) error {
	var in sectionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Ops == nil {
		in.Ops = []Op{}
	}
	*d = SectionDefinition(in)
	return nil
}

func (r PageRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Start, r.End})
}

func (r *PageRange) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("pages: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("pages: want [start, end], got %d values", len(pair))
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

type spanJSON struct {
	Range *[2]int `json:"range,omitempty"`
	From  *int    `json:"from,omitempty"`
}

func (s Span) MarshalJSON() ([]byte, error) {
	if s.Open {
		start := s.Start
		return json.Marshal(spanJSON{From: &start})
	}
	return json.Marshal(spanJSON{Range: &[2]int{s.Start, s.End}})
}

func (s *Span) UnmarshalJSON(data []byte) error {
	var in spanJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("span: %w", err)
	}
	switch {
	case in.Range != nil && in.From != nil:
		return fmt.Errorf("span: both range and from set")
	case in.Range != nil:
		*s = Span{Start: in.Range[0], End: in.Range[1]}
	case in.From != nil:
		*s = Span{Start: *in.From, Open: true}
	default:
		return fmt.Errorf("span: want range or from")
	}
	return nil
}

type opJSON struct {
	Delete *struct {
		Range [2]int `json:"range"`
	} `json:"delete,omitempty"`
}

func (o Op) MarshalJSON() ([]byte, error) {
	if o.Kind != OpDelete {
		return nil, fmt.Errorf("op: unknown kind %q", o.Kind)
	}
	var out opJSON
	out.Delete = &struct {
		Range [2]int `json:"range"`
	}{Range: [2]int{o.First, o.Last}}
	return json.Marshal(out)
}

func (o *Op) UnmarshalJSON(data []byte) error {
	var in opJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("op: %w", err)
	}
	if in.Delete == nil {
		return fmt.Errorf("op: unknown variant in %s", data)
	}
	*o = Delete(in.Delete.Range[0], in.Delete.Range[1])
	return nil
}

func (k Kind) MarshalJSON() ([]byte, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if k.Type != KindMerit {
		return json.Marshal(string(k.Type))
	}
	var sub *string
	if k.Subkind != "" {
		s := string(k.Subkind)
		sub = &s
	}
	return json.Marshal(map[string]*string{string(KindMerit): sub})
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var decoded Kind
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("kind: %w", err)
		}
		decoded = Kind{Type: KindType(name)}
	} else {
		var tagged map[string]*string
		if err := json.Unmarshal(data, &tagged); err != nil {
			return fmt.Errorf("kind: %w", err)
		}
		if len(tagged) != 1 {
			return fmt.Errorf("kind: want exactly one variant, got %d", len(tagged))
		}
		for name, sub := range tagged {
			decoded = Kind{Type: KindType(name)}
			if sub != nil {
				decoded.Subkind = MeritSubkind(*sub)
			}
		}
	}
	if err := decoded.Validate(); err != nil {
		return fmt.Errorf("kind: %w", err)
	}
	*k = decoded
	return nil
}

// Marshal renders the record the way sidecar files are written: tab indented,
// trailing newline.
func Marshal(m *SourceMeta) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "\t")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Unmarshal parses a sidecar document.
func Unmarshal(data []byte) (*SourceMeta, error) {
	var m SourceMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
