package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

func keyRecord(k domain.SigningKey) map[string]any {
	rec := map[string]any{
		"id":         k.ID,
		"kid":        k.Kid,
		"family":     k.Family,
		"algorithm":  k.Algorithm,
		"active":     k.Active,
		"created_at": k.CreatedAt.UTC().Format(time.RFC3339),
		"expires_at": k.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if k.RotatedAt != nil {
		rec["rotated_at"] = k.RotatedAt.UTC().Format(time.RFC3339)
	}
	return rec
}

// PrintKey prints a single signing key. Key material is never printed.
func (p *Printer) PrintKey(k domain.SigningKey) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(keyRecord(k))
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Signing Key:\n")
		fmt.Fprintf(p.writer, "  Kid:       %s\n", k.Kid)
		fmt.Fprintf(p.writer, "  Family:    %s\n", k.Family)
		fmt.Fprintf(p.writer, "  Algorithm: %s\n", k.Algorithm)
		fmt.Fprintf(p.writer, "  Active:    %t\n", k.Active)
		fmt.Fprintf(p.writer, "  Expires:   %s\n", k.ExpiresAt.UTC().Format(time.RFC3339))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintKeyList prints a list of signing keys
func (p *Printer) PrintKeyList(keys []domain.SigningKey) error {
	switch p.format {
	case OutputFormatJSON:
		list := make([]map[string]any, len(keys))
		for i, k := range keys {
			list[i] = keyRecord(k)
		}
		return p.printJSON(map[string]any{"keys": list})
	case OutputFormatText:
		if len(keys) == 0 {
			fmt.Fprintln(p.writer, "No keys found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-32s %-11s %-6s %-7s %s\n", "KID", "FAMILY", "ALG", "ACTIVE", "EXPIRES")
		fmt.Fprintln(p.writer, strings.Repeat("-", 80))
		for _, k := range keys {
			fmt.Fprintf(p.writer, "%-32s %-11s %-6s %-7t %s\n",
				k.Kid, k.Family, k.Algorithm, k.Active, k.ExpiresAt.UTC().Format(time.RFC3339))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintMethodList prints auth methods without their secret material.
func (p *Printer) PrintMethodList(methods []domain.AuthMethod) error {
	switch p.format {
	case OutputFormatJSON:
		list := make([]map[string]any, len(methods))
		for i, m := range methods {
			list[i] = map[string]any{
				"id":          m.ID,
				"identity_id": m.IdentityID,
				"kind":        m.Kind(),
				"enabled":     m.Enabled,
				"approved":    m.Approved,
				"created_at":  m.CreatedAt.UTC().Format(time.RFC3339),
			}
		}
		return p.printJSON(map[string]any{"methods": list})
	case OutputFormatText:
		if len(methods) == 0 {
			fmt.Fprintln(p.writer, "No methods found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-26s %-26s %-18s %s\n", "ID", "IDENTITY", "KIND", "CREATED")
		fmt.Fprintln(p.writer, strings.Repeat("-", 92))
		for _, m := range methods {
			fmt.Fprintf(p.writer, "%-26s %-26s %-18s %s\n",
				m.ID, m.IdentityID, m.Kind(), m.CreatedAt.UTC().Format(time.RFC3339))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func identityRecord(ident domain.Identity) map[string]any {
	return map[string]any{
		"id":           ident.ID,
		"username":     ident.Username,
		"display_name": ident.DisplayName,
		"enabled":      ident.Enabled,
		"is_admin":     ident.IsAdmin,
		"created_at":   ident.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// PrintIdentity prints a single identity.
func (p *Printer) PrintIdentity(ident domain.Identity) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(identityRecord(ident))
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Identity:\n")
		fmt.Fprintf(p.writer, "  ID:       %s\n", ident.ID)
		fmt.Fprintf(p.writer, "  Username: %s\n", ident.Username)
		fmt.Fprintf(p.writer, "  Enabled:  %t\n", ident.Enabled)
		fmt.Fprintf(p.writer, "  Admin:    %t\n", ident.IsAdmin)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintIdentityList prints identities as a table or a JSON document.
func (p *Printer) PrintIdentityList(idents []domain.Identity) error {
	switch p.format {
	case OutputFormatJSON:
		list := make([]map[string]any, len(idents))
		for i, ident := range idents {
			list[i] = identityRecord(ident)
		}
		return p.printJSON(map[string]any{"identities": list})
	case OutputFormatText:
		if len(idents) == 0 {
			fmt.Fprintln(p.writer, "No identities found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-26s %-20s %-8s %s\n", "ID", "USERNAME", "ENABLED", "ADMIN")
		fmt.Fprintln(p.writer, strings.Repeat("-", 64))
		for _, ident := range idents {
			fmt.Fprintf(p.writer, "%-26s %-20s %-8t %t\n", ident.ID, ident.Username, ident.Enabled, ident.IsAdmin)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintVersion prints build information
func (p *Printer) PrintVersion(info map[string]string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(info)
	case OutputFormatText:
		keys := make([]string, 0, len(info))
		for k := range info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(p.writer, "%s: %s\n", k, info[k])
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func (p *Printer) printJSON(v any) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
