package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"configctx/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForFormat(t *testing.T) {
	for _, format := range []string{"", "json", "JSON"} {
		c, err := ForFormat(format)
		require.NoError(t, err)
		assert.Equal(t, FormatJSON, c.Format())
	}
	for _, format := range []string{"yaml", "yml"} {
		c, err := ForFormat(format)
		require.NoError(t, err)
		assert.Equal(t, FormatYAML, c.Format())
	}

	_, err := ForFormat("toml")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestForPath(t *testing.T) {
	c, ok := ForPath("contexts/ntp.yml")
	require.True(t, ok)
	assert.Equal(t, FormatYAML, c.Format())

	c, ok = ForPath("contexts/ntp.JSON")
	require.True(t, ok)
	assert.Equal(t, FormatJSON, c.Format())

	_, ok = ForPath("README.md")
	assert.False(t, ok)
}

func TestParseData(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		input   string
		want    string
		wantErr error
	}{
		{"json mapping", "json", `{"ntp": {"servers": ["10.0.0.1"]}, "mtu": 9000}`, `{"mtu":9000,"ntp":{"servers":["10.0.0.1"]}}`, nil},
		{"yaml mapping", "yaml", "ntp:\n  servers:\n    - 10.0.0.1\nmtu: 9000\n", `{"mtu":9000,"ntp":{"servers":["10.0.0.1"]}}`, nil},
		{"empty yaml", "yaml", "", `{}`, nil},
		{"json list", "json", `[1, 2]`, "", domain.ErrInvalidContextData},
		{"yaml scalar", "yaml", "just text\n", "", domain.ErrInvalidContextData},
		{"broken json", "json", `{"a":`, "", domain.ErrInvalidContextData},
		{"json trailing newline", "json", "{\"a\": 1}\n", `{"a":1}`, nil},
		{"json second value", "json", `{"a":1}{"b":2}`, "", domain.ErrInvalidContextData},
		{"json trailing garbage", "json", `{"a":1} junk`, "", domain.ErrInvalidContextData},
		{"json extra brace", "json", `{"a":1}}`, "", domain.ErrInvalidContextData},
		{"yaml nan", "yaml", "x: .nan\n", "", domain.ErrInvalidContextData},
		{"yaml infinity", "yaml", "x:\n  y: [-.inf]\n", "", domain.ErrInvalidContextData},
		{"unknown format", "xml", `<a/>`, "", domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseData(tt.format, strings.NewReader(tt.input))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestParseDocumentPlain(t *testing.T) {
	input := `
name: ntp-servers
weight: 2000
description: NTP for leaves
is_active: false
groups:
  roles: [leaf, spine]
  tenant: acme
data:
  ntp:
    servers: [10.0.0.1]
`
	rec, err := NewYAMLCodec().ParseDocument(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "ntp-servers", rec.Name)
	assert.Equal(t, 2000, rec.Weight)
	assert.Equal(t, "NTP for leaves", rec.Description)
	assert.False(t, rec.IsActive)
	assert.Equal(t, []domain.GroupRef{
		{Kind: domain.GroupRole, Slug: "leaf"},
		{Kind: domain.GroupRole, Slug: "spine"},
		{Kind: domain.GroupTenant, Slug: "acme"},
	}, rec.Groups)
	assert.Equal(t, `{"ntp":{"servers":["10.0.0.1"]}}`, rec.Data.String())
}

func TestParseDocumentMetadataForm(t *testing.T) {
	input := `{
		"_metadata": {"name": "syslog", "weight": 500, "groups": ["location:ams1", "role:leaf"]},
		"syslog": {"host": "10.9.9.9"}
	}`
	rec, err := NewJSONCodec().ParseDocument(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "syslog", rec.Name)
	assert.Equal(t, 500, rec.Weight)
	assert.True(t, rec.IsActive)
	assert.Len(t, rec.Groups, 2)
	assert.Equal(t, `{"syslog":{"host":"10.9.9.9"}}`, rec.Data.String())
}

func TestParseDocumentGroupObjects(t *testing.T) {
	input := `{
		"name": "ntp",
		"groups": [{"kind": "role", "slug": "leaf"}, "tenants:acme", {"kind": "role", "slug": "leaf"}],
		"data": {}
	}`
	rec, err := NewJSONCodec().ParseDocument(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []domain.GroupRef{
		{Kind: domain.GroupRole, Slug: "leaf"},
		{Kind: domain.GroupTenant, Slug: "acme"},
	}, rec.Groups)
}

func TestParseDocumentDefaults(t *testing.T) {
	rec, err := NewYAMLCodec().ParseDocument(strings.NewReader("data: {a: 1}\n"))
	require.NoError(t, err)

	assert.Empty(t, rec.Name)
	assert.Equal(t, domain.DefaultWeight, rec.Weight)
	assert.True(t, rec.IsActive)
	assert.True(t, rec.AppliesToAll())
}

func TestParseDocumentErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"list document", "- a\n- b\n"},
		{"weight not int", "name: x\nweight: heavy\n"},
		{"active not bool", "name: x\nis_active: maybe\n"},
		{"unknown group kind", "name: x\ngroups:\n  regions: [emea]\n"},
		{"empty slug", "name: x\ngroups:\n  roles: ['']\n"},
		{"data not mapping", "name: x\ndata: [1, 2]\n"},
		{"metadata not mapping", "_metadata: 3\n"},
		{"group object without slug", "name: x\ngroups:\n  - {kind: role}\n"},
		{"group number", "name: x\ngroups: [3]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewYAMLCodec().ParseDocument(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestDocumentValueRoundTrip(t *testing.T) {
	data := domain.NewMapping()
	data.Set("dns", domain.SequenceValue(domain.StringValue("1.1.1.1")))

	rec := domain.NewContextRecord("dns", 300, data)
	rec.Description = "resolvers"
	rec.Groups = []domain.GroupRef{
		{Kind: domain.GroupTenant, Slug: "acme"},
		{Kind: domain.GroupRole, Slug: "spine"},
		{Kind: domain.GroupRole, Slug: "leaf"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewYAMLCodec().Export(DocumentValue(rec), &buf))

	parsed, err := NewYAMLCodec().ParseDocument(&buf)
	require.NoError(t, err)
	assert.Equal(t, rec.Name, parsed.Name)
	assert.Equal(t, rec.Weight, parsed.Weight)
	assert.Equal(t, rec.Description, parsed.Description)
	assert.Equal(t, []domain.GroupRef{
		{Kind: domain.GroupRole, Slug: "leaf"},
		{Kind: domain.GroupRole, Slug: "spine"},
		{Kind: domain.GroupTenant, Slug: "acme"},
	}, parsed.Groups)
	assert.True(t, rec.Data.Equal(parsed.Data))
}

func TestExport(t *testing.T) {
	v := domain.NewMapping()
	v.Set("zeta", domain.IntValue(1))
	v.Set("alpha", domain.SequenceValue(domain.StringValue("x")))

	var js bytes.Buffer
	require.NoError(t, NewJSONCodec().Export(v, &js))
	assert.Equal(t, "{\n  \"alpha\": [\n    \"x\"\n  ],\n  \"zeta\": 1\n}\n", js.String())

	var ym bytes.Buffer
	require.NoError(t, NewYAMLCodec().Export(v, &ym))
	assert.Equal(t, "alpha:\n  - x\nzeta: 1\n", ym.String())
}
