package services

import (
	"fmt"
	"strings"

	"github.com/instabids/scope-engine/pkg/models"
	"github.com/instabids/scope-engine/pkg/protocol"
)

// renderMessage turns a result into the text a driver relays or acts upon.
// New identifiers are always echoed so the driver can keep them.
func renderMessage(res *Result) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, format, args...)
	}

	if res.OwnerGenerated {
		line("New owner_id %s was generated; pass it on later calls.", res.OwnerID)
	}

	switch res.Kind {
	case CommandSubmitFact:
		if res.Fact.CreatedNewScope {
			line("Created new project scope %s.", res.Fact.ScopeID)
		}
		where := "project scope"
		if res.Fact.Misc {
			where = "project scope (additional facts)"
		}
		if res.Fact.Changed {
			line("Recorded %s in %s %s.", res.Fact.FactName, where, res.Fact.ScopeID)
		} else {
			line("%s was already recorded in %s %s.", res.Fact.FactName, where, res.Fact.ScopeID)
		}
		if res.Fact.Ambiguous {
			line("The value for %s was unclear and was stored as false; confirm it with the user.", res.Fact.FactName)
		}
		if res.Correction {
			line("The scope was already confirmed; this was recorded as a correction.")
		}
	case CommandIngestImage:
		line("Image uploaded to %s.", res.Image.URL)
		if res.ConversationID != "" {
			line("Submit it as image_url to attach it to the project.")
		}
		if !res.Image.Cataloged {
			line("Note: the image was stored but could not be catalogued.")
		}
	case CommandBeginTurn:
		line("Turn started.")
		if res.State == protocol.StateImagePending {
			line("Upload the attached image before submitting other facts.")
		}
	case CommandSkipSlot:
		line("Slot skipped.")
	case CommandReviewScope:
		if res.Scope != nil {
			line("Project scope %s (status %s).", res.Scope.ID, res.Scope.Status)
			for _, f := range models.ScopeFields {
				if v := res.Scope.Value(f); v != nil && f != models.FieldStatus {
					line("%s: %v.", f, v)
				}
			}
		}
	case CommandConfirmScope:
		line("Project scope %s is confirmed.", *res.ScopeID)
	}

	if res.EnteredConfirming {
		line("All slots are collected; review the scope with the user and ask them to confirm.")
	} else if res.NextSlot != "" && res.Kind != CommandReviewScope {
		line("Next, ask about %s.", res.NextSlot)
	}

	if !res.StateSaved {
		line("Note: conversation state could not be saved; keep the project_scope_id and owner_id and pass them explicitly.")
	}
	return b.String()
}
