package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatusCodeMapsKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Client("bad"), http.StatusBadRequest},
		{Conflict("busy"), http.StatusConflict},
		{Server(errors.New("boom"), "failed"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusCode(c.err); got != c.want {
			t.Fatalf("StatusCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestServerErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Server(cause, "wrapped")
	if !errors.Is(err, cause) {
		t.Fatal("expected Server error to unwrap to its cause")
	}
}
