package mockjs

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
)

func generate(t *testing.T, tmpl string, opts ...Option) map[string]any {
	t.Helper()
	out, err := New(opts...).Generate(json.RawMessage(tmpl))
	if err != nil {
		t.Fatalf("Generate(%s): %v", tmpl, err)
	}
	var v map[string]any
	if err := json.Unmarshal(out, &v); err != nil {
		t.Fatalf("Generate(%s) produced invalid JSON %s: %v", tmpl, out, err)
	}
	return v
}

func TestGenerateArrayRepeat(t *testing.T) {
	v := generate(t, `{"msg|3": ["x"]}`)

	arr, ok := v["msg"].([]any)
	if !ok {
		t.Fatalf("msg = %T, want array", v["msg"])
	}
	if len(arr) != 3 {
		t.Fatalf("len(msg) = %d, want 3", len(arr))
	}
	for i, item := range arr {
		if item != "x" {
			t.Errorf("msg[%d] = %v, want x", i, item)
		}
	}
}

func TestGenerateArrayPickOne(t *testing.T) {
	v := generate(t, `{"pick|1": ["a", "b", "c"]}`)

	s, ok := v["pick"].(string)
	if !ok {
		t.Fatalf("pick = %T, want string", v["pick"])
	}
	if s != "a" && s != "b" && s != "c" {
		t.Errorf("pick = %q, want one of the template elements", s)
	}
}

func TestGenerateIntegerRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		v := generate(t, `{"age|18-60": 0}`)
		age, ok := v["age"].(float64)
		if !ok {
			t.Fatalf("age = %T, want number", v["age"])
		}
		if age != float64(int(age)) {
			t.Fatalf("age = %v, want an integer", age)
		}
		if age < 18 || age > 60 {
			t.Fatalf("age = %v, want within [18, 60]", age)
		}
	}
}

func TestGenerateFloatDecimals(t *testing.T) {
	for i := 0; i < 50; i++ {
		v := generate(t, `{"price|10-99.2": 1}`)
		price, ok := v["price"].(float64)
		if !ok {
			t.Fatalf("price = %T, want number", v["price"])
		}
		if price < 10 || price >= 100 {
			t.Fatalf("price = %v, integer part must stay within [10, 99]", price)
		}
		s := strconv.FormatFloat(price, 'f', -1, 64)
		dot := strings.IndexByte(s, '.')
		if dot < 0 || len(s)-dot-1 != 2 {
			t.Fatalf("price = %s, want exactly two decimal places", s)
		}
	}
}

func TestGenerateIncrementCounter(t *testing.T) {
	v := generate(t, `{"list|3": [{"id|+1": 1}]}`)

	arr, ok := v["list"].([]any)
	if !ok {
		t.Fatalf("list = %T, want array", v["list"])
	}
	if len(arr) != 3 {
		t.Fatalf("len(list) = %d, want 3", len(arr))
	}
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			t.Fatalf("list[%d] = %T, want object", i, item)
		}
		if got := obj["id"]; got != float64(i+1) {
			t.Errorf("list[%d].id = %v, want %d", i, got, i+1)
		}
	}
}

func TestGenerateBooleanFlip(t *testing.T) {
	v := generate(t, `{"ok|1": true}`)
	if _, ok := v["ok"].(bool); !ok {
		t.Fatalf("ok = %T, want bool", v["ok"])
	}
}

func TestGenerateObjectSubset(t *testing.T) {
	v := generate(t, `{"sub|2": {"a": 1, "b": 2, "c": 3}}`)

	obj, ok := v["sub"].(map[string]any)
	if !ok {
		t.Fatalf("sub = %T, want object", v["sub"])
	}
	if len(obj) != 2 {
		t.Fatalf("len(sub) = %d, want 2", len(obj))
	}
	for k := range obj {
		if k != "a" && k != "b" && k != "c" {
			t.Errorf("sub contains unexpected key %q", k)
		}
	}
}

func TestGenerateTypedPlaceholder(t *testing.T) {
	v := generate(t, `{"n": "@integer(1,6)"}`)

	n, ok := v["n"].(float64)
	if !ok {
		t.Fatalf("n = %T, want number from a lone placeholder", v["n"])
	}
	if n < 1 || n > 6 {
		t.Errorf("n = %v, want within [1, 6]", n)
	}
}

func TestGenerateEmbeddedPlaceholders(t *testing.T) {
	v := generate(t, `{"s": "@name lives at @ip"}`)

	s, ok := v["s"].(string)
	if !ok {
		t.Fatalf("s = %T, want string", v["s"])
	}
	if strings.Contains(s, "@name") || strings.Contains(s, "@ip") {
		t.Errorf("s = %q, placeholders were not expanded", s)
	}
	if !strings.Contains(s, " lives at ") {
		t.Errorf("s = %q, surrounding text must survive", s)
	}
}

func TestGenerateUnknownDirectiveFailsClosed(t *testing.T) {
	v := generate(t, `{"x|weird": 7}`)

	if got, ok := v["x|weird"]; !ok || got != float64(7) {
		t.Errorf("unsupported directive must keep the literal key, got %v", v)
	}
	if _, ok := v["x"]; ok {
		t.Error("unsupported directive must not emit the bare name")
	}
}

func TestGenerateUnknownPlaceholderKept(t *testing.T) {
	v := generate(t, `{"s": "@nosuchthing"}`)

	if got := v["s"]; got != "@nosuchthing" {
		t.Errorf("s = %v, unknown placeholder must pass through verbatim", got)
	}
}

func TestGenerateSeededDeterminism(t *testing.T) {
	tmpl := json.RawMessage(`{
		"users|3": [{"id|+1": 1, "name": "@name", "score|0-100.2": 0}],
		"host": "@domain",
		"tag": "@string(8)"
	}`)

	first, err := New(WithSeed(42)).Generate(tmpl)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	second, err := New(WithSeed(42)).Generate(tmpl)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("seeded runs differ:\n%s\n%s", first, second)
	}

	other, err := New(WithSeed(7)).Generate(tmpl)
	if err != nil {
		t.Fatalf("third Generate: %v", err)
	}
	if bytes.Equal(first, other) {
		t.Error("different seeds should give different output for random templates")
	}
}

func TestGenerateScalarTemplates(t *testing.T) {
	out, err := New().Generate(json.RawMessage(`"@integer(5,5)"`))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(out) != "5" {
		t.Errorf("lone placeholder string template = %s, want 5", out)
	}

	out, err = New().Generate(json.RawMessage(`42`))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(out) != "42" {
		t.Errorf("plain number template = %s, want 42", out)
	}
}

func TestGenerateInvalidTemplate(t *testing.T) {
	if _, err := New().Generate(json.RawMessage(`{oops`)); err == nil {
		t.Error("invalid JSON template must return an error")
	}
}
