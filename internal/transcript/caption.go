package transcript

import "github.com/MegaGrindStone/hopeai-web-ui/internal/models"

// LiveView exposes the live entries of a transcript. Engine implements it.
type LiveView interface {
	Live(role models.Role) (models.TranscriptEntry, bool)
}

// Project derives the caption state from the live entries of v.
func Project(v LiveView) models.LiveCaptionState {
	var s models.LiveCaptionState
	if entry, ok := v.Live(models.RoleUser); ok {
		s.UserText = entry.Text
		s.Active = true
	}
	if entry, ok := v.Live(models.RoleAssistant); ok {
		s.AssistantText = entry.Text
		s.Active = true
	}
	return s
}
