package mutation

import (
	"fmt"
	"net/mail"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"crudschema/internal/core/apperror"
	"crudschema/internal/schema"
)

// Rule names reported in validation errors.
const (
	RuleRequired = "required"
	RuleType     = "type"
	RuleLength   = "length"
	RuleRange    = "range"
	RuleEmail    = "email"
	RuleRegex    = "regex"
	RuleExpr     = "expr"
)

// Validator checks field values against their declared rules. Compiled
// regular expressions and CEL programs are cached by source text.
type Validator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
	regexes  map[string]*regexp.Regexp
}

// NewValidator creates a validator. Expressions see the field value as
// `value` and the whole payload as `record`.
func NewValidator() (*Validator, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &Validator{
		env:      env,
		programs: make(map[string]cel.Program),
		regexes:  make(map[string]*regexp.Regexp),
	}, nil
}

// Field validates one coerced value. record is the whole payload, visible to
// expression rules.
func (v *Validator) Field(model string, f schema.FieldDef, value any, record map[string]any) error {
	fail := func(rule, msg string) error {
		return apperror.NewFieldValidation(model, f.Key, rule, msg)
	}

	if isEmpty(value) {
		if f.IsRequired() {
			return fail(RuleRequired, "is required")
		}
		return nil
	}

	rules := f.Validation
	if kindIsEmail(f) || (rules != nil && bool(rules.Email)) {
		s, _ := value.(string)
		if addr, err := mail.ParseAddress(s); err != nil || addr.Address != s {
			return fail(RuleEmail, "must be a valid e-mail address")
		}
	}
	if rules == nil {
		return nil
	}

	if rules.Length != nil {
		n, ok := length(value)
		if ok && !withinBounds(decimal.NewFromInt(int64(n)), rules.Length) {
			return fail(RuleLength, "length "+describeBounds(rules.Length))
		}
	}

	if rules.Range != nil {
		n, ok := number(value)
		if ok && !withinBounds(n, rules.Range) {
			return fail(RuleRange, "must be "+describeBounds(rules.Range))
		}
	}

	if rules.Regex != "" {
		re, err := v.regex(rules.Regex)
		if err != nil {
			return apperror.NewSchemaInvalid(model, fmt.Sprintf("field %q: %v", f.Key, err))
		}
		if s, ok := value.(string); ok && !re.MatchString(s) {
			return fail(RuleRegex, "does not match the required pattern")
		}
	}

	if rules.Expr != "" {
		ok, err := v.eval(rules.Expr, value, record)
		if err != nil {
			return fail(RuleExpr, err.Error())
		}
		if !ok {
			return fail(RuleExpr, "does not satisfy "+rules.Expr)
		}
	}
	return nil
}

func kindIsEmail(f schema.FieldDef) bool { return f.Kind == schema.KindEmail }

func (v *Validator) regex(src string) (*regexp.Regexp, error) {
	v.mu.RLock()
	re, ok := v.regexes[src]
	v.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.regexes[src] = re
	v.mu.Unlock()
	return re, nil
}

func (v *Validator) program(src string) (cel.Program, error) {
	v.mu.RLock()
	prg, ok := v.programs[src]
	v.mu.RUnlock()
	if ok {
		return prg, nil
	}
	ast, iss := v.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid expression: %w", iss.Err())
	}
	prg, err := v.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}
	v.mu.Lock()
	v.programs[src] = prg
	v.mu.Unlock()
	return prg, nil
}

// Compile checks an expression without evaluating it.
func (v *Validator) Compile(src string) error {
	_, err := v.program(src)
	return err
}

func (v *Validator) eval(src string, value any, record map[string]any) (bool, error) {
	prg, err := v.program(src)
	if err != nil {
		return false, err
	}
	rec := make(map[string]any, len(record))
	for k, val := range record {
		rec[k] = celValue(val)
	}
	out, _, err := prg.Eval(map[string]any{"value": celValue(value), "record": rec})
	if err != nil {
		return false, fmt.Errorf("evaluate %s: %w", src, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %s does not yield a boolean", src)
	}
	return b, nil
}

// celValue maps persisted Go values onto types CEL understands.
func celValue(v any) any {
	switch t := v.(type) {
	case decimal.Decimal:
		return t.InexactFloat64()
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	return v
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func length(v any) (int, bool) {
	if s, ok := v.(string); ok {
		return utf8.RuneCountInString(s), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

func number(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int64:
		return decimal.NewFromInt(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case float64:
		return decimal.NewFromFloat(n), true
	}
	return decimal.Decimal{}, false
}

func withinBounds(n decimal.Decimal, b *schema.Bounds) bool {
	if b.Min != nil && n.LessThan(decimal.NewFromFloat(*b.Min)) {
		return false
	}
	if b.Max != nil && n.GreaterThan(decimal.NewFromFloat(*b.Max)) {
		return false
	}
	return true
}

func describeBounds(b *schema.Bounds) string {
	switch {
	case b.Min != nil && b.Max != nil:
		return fmt.Sprintf("between %g and %g", *b.Min, *b.Max)
	case b.Min != nil:
		return fmt.Sprintf("at least %g", *b.Min)
	case b.Max != nil:
		return fmt.Sprintf("at most %g", *b.Max)
	}
	return "unbounded"
}
