package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(ErrCodeValidation, "bad input")
	if got := err.Error(); got != "[VALIDATION_ERROR] bad input" {
		t.Fatalf("unexpected message: %q", got)
	}

	wrapped := Wrap(ErrCodeBackend, "save failed", fmt.Errorf("disk full"))
	if got := wrapped.Error(); got != "[BACKEND_ERROR] save failed: disk full" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCodeResourceFailure, "create failed", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped error to match its cause")
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := New(ErrCodeTimeout, "CREATE timed out")
	if !Is(err, ErrCodeTimeout) {
		t.Fatal("expected code match")
	}
	if Is(err, ErrCodeValidation) {
		t.Fatal("unexpected code match")
	}
	if Is(fmt.Errorf("plain"), ErrCodeTimeout) {
		t.Fatal("plain errors carry no code")
	}
}

func TestCodeOf(t *testing.T) {
	if code := CodeOf(New(ErrCodeConflict, "busy")); code != ErrCodeConflict {
		t.Fatalf("unexpected code: %q", code)
	}
	if code := CodeOf(fmt.Errorf("plain")); code != "" {
		t.Fatalf("expected empty code, got %q", code)
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCodeValidation, "bad input").
		WithDetail("field", "name").
		WithDetails(map[string]interface{}{"line": 3})

	if err.Details["field"] != "name" || err.Details["line"] != 3 {
		t.Fatalf("unexpected details: %v", err.Details)
	}
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err      *Error
		code     ErrorCode
		contains string
	}{
		{UnknownUserParameter([]string{"zone", "az"}), ErrCodeUnknownParameter, "zone, az"},
		{UserParameterMissing("flavor"), ErrCodeMissingParameter, `"flavor"`},
		{CircularDependency([]string{"a", "b", "a"}), ErrCodeCircular, "a -> b -> a"},
		{InvalidTemplateAttribute("db", "address"), ErrCodeInvalidAttribute, `"address"`},
		{InvalidTemplateReference("mapping", "images"), ErrCodeInvalidReference, `"images"`},
		{ResourceFailure("db", "CREATE", fmt.Errorf("boom")), ErrCodeResourceFailure, "boom"},
		{Timeout("CREATE"), ErrCodeTimeout, "CREATE timed out"},
		{RollbackFailure("web", fmt.Errorf("boom")), ErrCodeRollbackFailure, `"web"`},
		{NotFoundError("stack", "web"), ErrCodeNotFound, `stack "web" not found`},
		{ParseError("stack.yaml", fmt.Errorf("bad yaml")), ErrCodeParse, "stack.yaml"},
		{BackendError("s3", "lock", fmt.Errorf("denied")), ErrCodeBackend, "lock"},
	}

	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("%v: expected code %s, got %s", tc.err, tc.code, tc.err.Code)
		}
		if !strings.Contains(tc.err.Error(), tc.contains) {
			t.Errorf("expected %q in %q", tc.contains, tc.err.Error())
		}
	}
}
