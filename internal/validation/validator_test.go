package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type contactForm struct {
	Name    string `json:"name" validate:"notblank,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"notblank"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name      string
		in        contactForm
		wantField string
		wantMsg   string
	}{
		{"valid", contactForm{"Ada", "ada@example.com", "hi"}, "", ""},
		{"bad email", contactForm{"Ada", "not-an-email", "hi"}, "email", "email must be a valid email address"},
		{"blank name", contactForm{"   ", "ada@example.com", "hi"}, "name", "name is required"},
		{"long name", contactForm{strings.Repeat("a", 201), "ada@example.com", "hi"}, "name", "name must be at most 200 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(&tt.in)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var verr *Error
			require.True(t, errors.As(err, &verr))
			require.Len(t, verr.Fields, 1)
			require.Equal(t, tt.wantField, verr.Fields[0].Field)
			require.Equal(t, tt.wantMsg, verr.Error())
		})
	}
}

func TestStruct_MultipleErrors(t *testing.T) {
	err := Struct(&contactForm{})
	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 3)
	require.Contains(t, err.Error(), "; ")
}

func TestGet_Singleton(t *testing.T) {
	require.Same(t, Get(), Get())
}
