package tools

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// SecurityGate authorizes a call against a ToolContext and, for specs that
// reach out over the network, checks the call's egress target before any
// backend strategy runs.
type SecurityGate interface {
	Authorize(tctx *ToolContext, spec *ToolSpec) error
	CheckEgress(args map[string]interface{}, spec *ToolSpec) error
}

// NoopSecurity allows every call and every egress target. Intended for
// trusted, single-tenant deployments.
type NoopSecurity struct{}

func (NoopSecurity) Authorize(*ToolContext, *ToolSpec) error  { return nil }
func (NoopSecurity) CheckEgress(map[string]interface{}, *ToolSpec) error { return nil }

// BasicSecurity authorizes by user/role allow-list plus permission list
// and, for HTTP-backed specs, rejects requests aimed at loopback,
// link-local or private network addresses to close off SSRF against
// internal infrastructure.
type BasicSecurity struct {
	// AllowedUsers, when non-empty, must contain the caller's
	// ToolContext.UserID.
	AllowedUsers []string
	// AllowedRoles, when non-empty, must contain the caller's
	// ToolContext.Auth["role"] (string).
	AllowedRoles []string
	BlockPrivateNetworks bool
}

func NewBasicSecurity() *BasicSecurity {
	return &BasicSecurity{BlockPrivateNetworks: true}
}

// Authorize runs the users, roles and permissions allow-lists
// conjunctively: each check only applies when its own configuration is
// non-empty, but every configured check must pass.
func (s *BasicSecurity) Authorize(tctx *ToolContext, spec *ToolSpec) error {
	if len(s.AllowedUsers) == 0 && len(s.AllowedRoles) == 0 && len(spec.Permissions) == 0 {
		return nil
	}
	if tctx == nil {
		return NewToolError(CodeUnauthorized, "no authorization context supplied").WithToolID(spec.ID)
	}

	if len(s.AllowedUsers) > 0 {
		allowed := false
		for _, u := range s.AllowedUsers {
			if u == tctx.UserID {
				allowed = true
				break
			}
		}
		if !allowed {
			return NewToolError(CodeUnauthorized,
				fmt.Sprintf("user %q is not permitted to invoke this tool", tctx.UserID)).WithToolID(spec.ID)
		}
	}

	if len(s.AllowedRoles) > 0 {
		role, _ := tctx.Auth["role"].(string)
		allowed := false
		for _, r := range s.AllowedRoles {
			if r == role {
				allowed = true
				break
			}
		}
		if !allowed {
			return NewToolError(CodeUnauthorizedRole,
				fmt.Sprintf("role %q is not permitted to invoke this tool", role)).WithToolID(spec.ID)
		}
	}

	if len(spec.Permissions) > 0 {
		if tctx.Auth == nil {
			return NewToolError(CodeUnauthorized, "no authorization context supplied").WithToolID(spec.ID)
		}
		granted, _ := tctx.Auth["permissions"].([]string)
		grantedSet := make(map[string]struct{}, len(granted))
		for _, g := range granted {
			grantedSet[g] = struct{}{}
		}
		for _, required := range spec.Permissions {
			if _, ok := grantedSet[required]; !ok {
				return NewToolError(CodeInsufficientPermissions,
					fmt.Sprintf("missing required permission %q", required)).WithToolID(spec.ID)
			}
		}
	}
	return nil
}

func (s *BasicSecurity) CheckEgress(args map[string]interface{}, spec *ToolSpec) error {
	if spec.ToolType != ToolTypeHTTP || !s.BlockPrivateNetworks {
		return nil
	}
	target := spec.URL
	if v, ok := args["url"].(string); ok && v != "" {
		target = v
	}
	if target == "" {
		return nil
	}
	return validateEgressURL(target)
}

func validateEgressURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return NewToolError(CodeValidationError, fmt.Sprintf("invalid URL: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return NewToolError(CodeValidationError, fmt.Sprintf("unsupported URL scheme %q", parsed.Scheme))
	}
	host := normalizeHostname(parsed.Hostname())
	if host == "" {
		return NewToolError(CodeValidationError, "URL has no hostname")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		if ip := net.ParseIP(host); ip != nil {
			ips = []net.IP{ip}
		} else {
			return NewToolError(CodeValidationError, fmt.Sprintf("could not resolve host %q: %v", host, err))
		}
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return NewToolError(CodeUnauthorized,
				fmt.Sprintf("refusing to contact private or loopback address %s", ip)).WithRetryable(false)
		}
	}
	return nil
}

func normalizeHostname(hostname string) string {
	h := strings.ToLower(strings.TrimSpace(hostname))
	h = strings.TrimSuffix(h, ".")
	return h
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	privateBlocks := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"fc00::/7",
		"fd00::/8",
		"::1/128",
	}
	for _, cidr := range privateBlocks {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
