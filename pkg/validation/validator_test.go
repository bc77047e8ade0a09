package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type signupInput struct {
	FirstName string `json:"firstName" validate:"required,personname"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,strongpwd"`
	Code      string `json:"code" validate:"omitempty,otp"`
}

func TestStrongPassword(t *testing.T) {
	v := New()
	cases := []struct {
		pwd string
		ok  bool
	}{
		{"Abc12345!", true},
		{"abc12345!", false},
		{"ABC12345!", false},
		{"Abcdefgh!", false},
		{"Abc123456", false},
		{"Ab1!", false},
		{strings.Repeat("Aa1!", 18), true},
		{strings.Repeat("Aa1!", 19), false},
	}
	for _, tc := range cases {
		err := v.Struct(signupInput{FirstName: "Ada", Email: "a@x.com", Password: tc.pwd})
		if tc.ok {
			require.NoError(t, err, tc.pwd)
		} else {
			require.Error(t, err, tc.pwd)
		}
	}
}

func TestToDetailsUsesJSONNames(t *testing.T) {
	v := New()
	err := v.Struct(signupInput{Email: "nope", Password: "weak", Code: "12ab"})
	require.Error(t, err)

	details := ToDetails(err)
	require.Equal(t, "is required", details["firstName"])
	require.Equal(t, "must be a valid email", details["email"])
	require.Contains(t, details["password"], "uppercase")
	require.Equal(t, "must be a 6-digit code", details["code"])
}

func TestToDetailsJSONErrors(t *testing.T) {
	var dst signupInput
	err := json.Unmarshal([]byte(`{"email":`), &dst)
	require.Equal(t, map[string]string{"payload": "invalid json"}, ToDetails(err))

	err = json.Unmarshal([]byte(`{"email":5}`), &dst)
	require.Equal(t, map[string]string{"payload": "invalid json"}, ToDetails(err))

	require.Nil(t, ToDetails(nil))
}
