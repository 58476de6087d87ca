package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	values map[string]string
	err    error
	calls  []string
	input  *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls = append(f.calls, *in.Name)
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name}}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name:  in.Name,
		Value: &v,
		Type:  types.ParameterTypeSecureString,
	}}, nil
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	c, err := New(api, " /rag-chat/ ")
	require.NoError(t, err)
	return c
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "/p")
	require.ErrorContains(t, err, "must not be nil")
	_, err = New(&fakeAPI{}, " / ")
	require.ErrorContains(t, err, "prefix")
}

func TestPath(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	require.Equal(t, "/rag-chat", c.Prefix())
	require.Equal(t, "/rag-chat/gemini-token", c.Path("gemini-token"))
	require.Equal(t, "/rag-chat/gemini-token", c.Path("/gemini-token/"))
	require.Equal(t, "", c.Path("  "))
}

func TestGetParameter_DecryptsFullName(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/other/p": "v"}}
	c := newTestClient(t, api)
	v, err := c.GetParameter(context.Background(), "/other/p")
	require.NoError(t, err)
	require.Equal(t, "v", v)
	require.True(t, *api.input.WithDecryption)
}

func TestGetParameter_Errors(t *testing.T) {
	c := newTestClient(t, &fakeAPI{values: map[string]string{}})
	_, err := c.GetParameter(context.Background(), "/missing")
	require.ErrorContains(t, err, "missing value")

	_, err = c.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")

	c = newTestClient(t, &fakeAPI{err: errors.New("boom")})
	_, err = c.GetParameter(context.Background(), "/p")
	require.ErrorContains(t, err, "boom")

	_, err = (&Client{}).GetParameter(context.Background(), "/p")
	require.ErrorContains(t, err, "not initialized")
}

func TestToken_CachesSuccess(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/rag-chat/gemini-token": `{"token":" g-key "}`}}
	c := newTestClient(t, api)

	for range 3 {
		tok, err := c.Token(context.Background(), "gemini-token")
		require.NoError(t, err)
		require.Equal(t, "g-key", tok)
	}
	require.Equal(t, []string{"/rag-chat/gemini-token"}, api.calls)
}

func TestToken_Errors(t *testing.T) {
	cases := []struct {
		name    string
		value   string
		wantErr string
	}{
		{name: "malformed", value: `{"tok`, wantErr: "decode token"},
		{name: "empty token", value: `{"other":"x"}`, wantErr: "is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{values: map[string]string{"/rag-chat/t": tc.value}}
			c := newTestClient(t, api)
			_, err := c.Token(context.Background(), "t")
			require.ErrorContains(t, err, tc.wantErr)
			_, _ = c.Token(context.Background(), "t")
			require.Len(t, api.calls, 2, "failures are retried")
		})
	}

	c := newTestClient(t, &fakeAPI{})
	_, err := c.Token(context.Background(), "")
	require.ErrorContains(t, err, "required")
}
