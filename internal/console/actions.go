package console

import (
	"fmt"

	"github.com/labdesk/labdesk/internal/period"
)

// Action is a per-period button of the period table.
type Action string

const (
	ActionViewArchive Action = "view-archive"
	ActionActivate    Action = "activate"
	ActionClose       Action = "close"
	ActionDelete      Action = "delete"
)

// Label is the button text.
func (a Action) Label() string {
	switch a {
	case ActionViewArchive:
		return "Lihat Arsip"
	case ActionActivate:
		return "Aktifkan"
	case ActionClose:
		return "Tutup Periode"
	case ActionDelete:
		return "Hapus"
	default:
		return string(a)
	}
}

// Actions returns the actions offered for p. Viewing an archive is open to
// everyone; the rest need the admin role.
func Actions(p period.Period, isAdmin bool) []Action {
	var out []Action
	if p.IsArchived {
		out = append(out, ActionViewArchive)
	}
	if !isAdmin {
		return out
	}
	switch {
	case p.IsArchived:
		out = append(out, ActionDelete)
	case p.IsActive:
		out = append(out, ActionClose)
	default:
		out = append(out, ActionActivate)
	}
	return out
}

// DeleteSummary describes what a deletion removes, for the confirmation prompt.
func DeleteSummary(p period.Period) string {
	return fmt.Sprintf("Periode %s akan dihapus permanen beserta %d anggota, %d proyek, dan %d kegiatan.",
		p.Code, p.TotalMembers, p.TotalProjects, p.TotalEvents)
}
