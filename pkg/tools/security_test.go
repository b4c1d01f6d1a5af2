package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicSecurityRequiresPermission(t *testing.T) {
	sec := NewBasicSecurity()
	spec := &ToolSpec{ID: "tool.refund", Permissions: []string{"refund:write"}}

	err := sec.Authorize(&ToolContext{}, spec)
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeUnauthorized, te.Code)

	tctx := &ToolContext{Auth: map[string]interface{}{"permissions": []string{"refund:read"}}}
	err = sec.Authorize(tctx, spec)
	require.Error(t, err)
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeInsufficientPermissions, te.Code)

	tctx = &ToolContext{Auth: map[string]interface{}{"permissions": []string{"refund:write"}}}
	assert.NoError(t, sec.Authorize(tctx, spec))
}

func TestBasicSecurityAllowsSpecsWithNoPermissions(t *testing.T) {
	sec := NewBasicSecurity()
	assert.NoError(t, sec.Authorize(&ToolContext{}, &ToolSpec{ID: "tool.ping"}))
}

func TestBasicSecurityEnforcesUserAllowList(t *testing.T) {
	sec := NewBasicSecurity()
	sec.AllowedUsers = []string{"alice"}
	spec := &ToolSpec{ID: "tool.ping"}

	err := sec.Authorize(&ToolContext{UserID: "mallory"}, spec)
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeUnauthorized, te.Code)

	assert.NoError(t, sec.Authorize(&ToolContext{UserID: "alice"}, spec))
}

func TestBasicSecurityEnforcesRoleAllowListEvenWithoutPermissions(t *testing.T) {
	sec := NewBasicSecurity()
	sec.AllowedRoles = []string{"admin"}
	spec := &ToolSpec{ID: "tool.ping"}

	err := sec.Authorize(&ToolContext{Auth: map[string]interface{}{"role": "guest"}}, spec)
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeUnauthorizedRole, te.Code)

	assert.NoError(t, sec.Authorize(&ToolContext{Auth: map[string]interface{}{"role": "admin"}}, spec))
}

func TestBasicSecurityBlocksPrivateEgress(t *testing.T) {
	sec := NewBasicSecurity()
	spec := &ToolSpec{ID: "tool.fetch", ToolType: ToolTypeHTTP, URL: "http://127.0.0.1:8080/admin"}
	err := sec.CheckEgress(map[string]interface{}{}, spec)
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeUnauthorized, te.Code)
}

func TestBasicSecurityAllowsPublicEgress(t *testing.T) {
	sec := NewBasicSecurity()
	spec := &ToolSpec{ID: "tool.fetch", ToolType: ToolTypeHTTP, URL: "https://example.com/"}
	assert.NoError(t, sec.CheckEgress(map[string]interface{}{}, spec))
}

func TestNoopSecurityAllowsEverything(t *testing.T) {
	sec := NoopSecurity{}
	spec := &ToolSpec{ID: "tool.fetch", ToolType: ToolTypeHTTP, URL: "http://127.0.0.1/"}
	assert.NoError(t, sec.Authorize(&ToolContext{}, spec))
	assert.NoError(t, sec.CheckEgress(map[string]interface{}{}, spec))
}
