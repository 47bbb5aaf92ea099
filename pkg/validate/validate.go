// Package validate holds the pure sanity checks applied to raw articles and
// to extraction output. Nothing here performs I/O; callers decide whether to
// retry, skip or fail.
package validate

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"

	"github.com/go-playground/validator"
)

const (
	DefaultMinBodyLength = 20
	MinStrength          = 0.0
	MaxStrength          = 10.0
)

// Validator checks articles and extraction results.
type Validator struct {
	structs       *validator.Validate
	minBodyLength int
}

type Option func(*Validator)

// WithMinBodyLength sets the minimum number of runes of trimmed body text.
func WithMinBodyLength(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.minBodyLength = n
		}
	}
}

func New(opts ...Option) *Validator {
	structs := validator.New()
	structs.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v := &Validator{
		structs:       structs,
		minBodyLength: DefaultMinBodyLength,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Struct runs the struct-tag rules only. It also satisfies echo.Validator.
func (v *Validator) Struct(i any) error {
	return v.structs.Struct(i)
}

// Validate is an alias of Struct for echo.
func (v *Validator) Validate(i any) error {
	return v.Struct(i)
}

// ValidateArticle rejects articles with a missing id, title or publication
// timestamp, a body shorter than the configured minimum, or a malformed URL.
func (v *Validator) ValidateArticle(a common.Article) (bool, []string) {
	reasons := make([]string, 0)

	if err := v.structs.Struct(a); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return false, []string{err.Error()}
		}
		for _, fe := range verrs {
			reasons = append(reasons, fieldReason(fe))
		}
	}

	if a.Title != "" && strings.TrimSpace(a.Title) == "" {
		reasons = append(reasons, "title: blank")
	}
	body := strings.TrimSpace(a.Body)
	if a.Body != "" {
		if n := utf8.RuneCountInString(body); n < v.minBodyLength {
			reasons = append(reasons, fmt.Sprintf("body: %d characters, minimum is %d", n, v.minBodyLength))
		}
	}

	return len(reasons) == 0, reasons
}

func fieldReason(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + ": missing"
	case "url":
		return field + ": not a valid url"
	default:
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
}

// ValidateExtraction filters an extraction down to its valid part.
//
// Entities with a missing or unknown type or a blank name are dropped.
// Relationships are dropped when they use the reserved article-membership
// type or a type outside the allowlist, reference a name that is not among
// the surviving entities, or carry a strength outside [0, 10]. Every drop is
// reported in reasons. The extraction is rejected (ok=false) only when no
// valid entity remains.
func (v *Validator) ValidateExtraction(res common.ExtractionResult) (common.ExtractionResult, bool, []string) {
	reasons := make([]string, 0)
	cleaned := common.ExtractionResult{
		Entities:      make([]common.CandidateEntity, 0, len(res.Entities)),
		Relationships: make([]common.CandidateRelationship, 0, len(res.Relationships)),
	}

	for i, e := range res.Entities {
		name := strings.TrimSpace(e.Name)
		switch {
		case name == "":
			reasons = append(reasons, fmt.Sprintf("entity %d: missing name", i))
			continue
		case e.Type == "":
			reasons = append(reasons, fmt.Sprintf("entity %q: missing type", name))
			continue
		case !e.Type.Valid():
			reasons = append(reasons, fmt.Sprintf("entity %q: unknown type %q", name, e.Type))
			continue
		}
		cleaned.Entities = append(cleaned.Entities, e)
	}

	if len(cleaned.Entities) == 0 {
		reasons = append(reasons, "no valid entities")
		return cleaned, false, reasons
	}

	for _, r := range res.Relationships {
		label := fmt.Sprintf("relationship %s -[%s]-> %s", strings.TrimSpace(r.Source), r.Type, strings.TrimSpace(r.Target))
		switch {
		case r.Type.Reserved():
			reasons = append(reasons, label+": reserved article-membership type")
			continue
		case !r.Type.Allowed():
			reasons = append(reasons, label+": type not in allowlist")
			continue
		case math.IsNaN(r.Strength) || r.Strength < MinStrength || r.Strength > MaxStrength:
			reasons = append(reasons, fmt.Sprintf("%s: strength %v outside [%v, %v]", label, r.Strength, MinStrength, MaxStrength))
			continue
		}
		if _, ok := cleaned.FindEntity(r.Source); !ok {
			reasons = append(reasons, label+": unknown source entity")
			continue
		}
		if _, ok := cleaned.FindEntity(r.Target); !ok {
			reasons = append(reasons, label+": unknown target entity")
			continue
		}
		cleaned.Relationships = append(cleaned.Relationships, r)
	}

	return cleaned, true, reasons
}
