package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ErrIncompleteProfile is returned when a mandatory profile field is empty.
var ErrIncompleteProfile = errors.New("incomplete profile")

// Profile is the fixed-schema member record resolved during onboarding.
type Profile struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	NationalID    string `json:"national_id"`
	Gender        string `json:"gender"`
	DateOfBirth   string `json:"date_of_birth"`
	HMO           string `json:"hmo"`
	InsuranceTier string `json:"insurance_tier"`
}

// Name joins first and last name.
func (p Profile) Name() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Missing lists the json names of empty fields, in schema order.
func (p Profile) Missing() []string {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"first_name", p.FirstName},
		{"last_name", p.LastName},
		{"national_id", p.NationalID},
		{"gender", p.Gender},
		{"date_of_birth", p.DateOfBirth},
		{"hmo", p.HMO},
		{"insurance_tier", p.InsuranceTier},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Validate checks every field is present. Value rules (id checksum, date
// ranges) belong to the intake form, not to the dialogue.
func (p Profile) Validate() error {
	if missing := p.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteProfile, strings.Join(missing, ", "))
	}
	return nil
}

// MarshalLogObject logs the profile with personal identifiers masked.
func (p Profile) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("hmo", p.HMO)
	enc.AddString("insurance_tier", p.InsuranceTier)
	enc.AddString("gender", p.Gender)
	enc.AddBool("has_national_id", p.NationalID != "")
	enc.AddBool("has_date_of_birth", p.DateOfBirth != "")
	return nil
}

// profilePayload accepts the schema plus a single "name" field that some
// models return instead of first/last.
type profilePayload struct {
	Profile
	Name string `json:"name"`
}

// ParseProfile decodes a model payload into a complete Profile. Markdown code
// fences around the JSON are tolerated.
func ParseProfile(payload string) (Profile, error) {
	content := stripCodeFence(payload)
	if content == "" {
		return Profile{}, errors.New("empty profile payload")
	}

	var raw profilePayload
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Profile{}, fmt.Errorf("decoding profile payload: %w", err)
	}

	p := raw.Profile
	if p.FirstName == "" && p.LastName == "" {
		if parts := strings.Fields(raw.Name); len(parts) > 0 {
			p.FirstName = parts[0]
			p.LastName = strings.Join(parts[1:], " ")
		}
	}
	p = p.trimmed()

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (p Profile) trimmed() Profile {
	return Profile{
		FirstName:     strings.TrimSpace(p.FirstName),
		LastName:      strings.TrimSpace(p.LastName),
		NationalID:    strings.TrimSpace(p.NationalID),
		Gender:        strings.TrimSpace(p.Gender),
		DateOfBirth:   strings.TrimSpace(p.DateOfBirth),
		HMO:           strings.TrimSpace(p.HMO),
		InsuranceTier: strings.TrimSpace(p.InsuranceTier),
	}
}

// stripCodeFence removes a ```json ... ``` wrapper.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// hmoKeys maps the accepted spellings of each HMO to the key used in
// knowledge base metadata.
var hmoKeys = map[string]string{
	"clalit":   "clalit",
	"כללית":    "clalit",
	"maccabi":  "maccabi",
	"מכבי":     "maccabi",
	"meuhedet": "meuhedet",
	"מאוחדת":   "meuhedet",
}

// HMOKey normalizes the HMO name to its metadata key. Unknown names are
// lowercased as is.
func (p Profile) HMOKey() string {
	name := strings.ToLower(strings.TrimSpace(p.HMO))
	if key, ok := hmoKeys[name]; ok {
		return key
	}
	return name
}
