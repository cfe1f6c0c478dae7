package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"disposal-bot/api/internal/backend"
	"disposal-bot/api/internal/disposal"
	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/util"
)

// Telegram rejects texts over 4096 runes.
const maxText = 3900

var riskBadge = map[normalize.RiskLevel]string{
	normalize.RiskHigh:   "🔴",
	normalize.RiskMedium: "🟠",
	normalize.RiskLow:    "🟢",
}

func formatPrediction(p *normalize.Prediction) string {
	var b strings.Builder
	name := p.IdentifiedMedicine
	if name == "" {
		name = "Unidentified medicine"
	}
	fmt.Fprintf(&b, "💊 %s %s\n\n", name, riskBadge[p.RiskLevel])

	for _, q := range disposal.BuildQuickReference(p) {
		fmt.Fprintf(&b, "%s: %s\n", q.Label, q.Value)
	}
	for _, s := range disposal.BuildSummarySections(p) {
		fmt.Fprintf(&b, "\n%s\n%s\n", strings.ToUpper(s.Label), s.Body)
	}
	if len(p.OCRSummary) > 0 {
		b.WriteString("\nREAD FROM THE PACKAGE\n")
		for _, it := range p.OCRSummary {
			fmt.Fprintf(&b, "%s: %s\n", it.Label, it.Value)
		}
	}
	if cta := disposal.CallToAction(p); cta != "" {
		b.WriteString("\n👉 " + cta)
	}
	return util.Truncate(b.String(), maxText)
}

const (
	cbSave       = "save"
	cbPickup     = "pickup"
	cbConsentYes = "consent:yes"
	cbConsentNo  = "consent:no"
	cbPause      = "view:pause"
	cbResume     = "view:resume"
	cbClose      = "view:close"

	prefixCHW      = "chw:"
	prefixDisposal = "pd:"
	prefixStatus   = "ps:"
)

func predictionKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("💾 Save disposal", cbSave),
		tgbotapi.NewInlineKeyboardButtonData("🚚 Request CHW pickup", cbPickup),
	))
}

func chwKeyboard(chws []backend.CHW) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range chws {
		label := c.Name
		if c.Sector != "" {
			label += " · " + c.Sector
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, prefixCHW+c.ID.String())))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func disposalKeyboard(ds []backend.Disposal) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, d := range ds {
		label := firstNonEmpty(d.GenericName, "Unnamed medicine")
		if d.RiskLevel != "" {
			label += " · " + d.RiskLevel
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, prefixDisposal+d.ID.String())))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func consentKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ I consent", cbConsentYes),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", cbConsentNo),
	))
}

// pickupActions lists the status moves offered for a pickup; CHWs drive the
// lifecycle, requesters may only cancel a pending request.
func pickupActions(p backend.Pickup, role backend.Role) []backend.PickupStatus {
	if p.Status.Terminal() {
		return nil
	}
	if role != backend.RoleCHW && role != backend.RoleAdmin {
		if p.Status == backend.PickupPending {
			return []backend.PickupStatus{backend.PickupCancelled}
		}
		return nil
	}
	switch p.Status {
	case backend.PickupPending:
		return []backend.PickupStatus{backend.PickupAccepted, backend.PickupCancelled}
	case backend.PickupAccepted:
		return []backend.PickupStatus{backend.PickupInProgress, backend.PickupCancelled}
	case backend.PickupInProgress:
		return []backend.PickupStatus{backend.PickupCompleted, backend.PickupCancelled}
	}
	return nil
}

var actionLabel = map[backend.PickupStatus]string{
	backend.PickupAccepted:   "Accept",
	backend.PickupInProgress: "Start",
	backend.PickupCompleted:  "Complete",
	backend.PickupCancelled:  "Cancel",
}

func statusButton(p backend.Pickup, st backend.PickupStatus) tgbotapi.InlineKeyboardButton {
	label := fmt.Sprintf("%s · %s", actionLabel[st], util.Truncate(firstNonEmpty(p.MedicineName, p.ID.String()), 20))
	return tgbotapi.NewInlineKeyboardButtonData(label, prefixStatus+p.ID.String()+":"+string(st))
}

func viewControls(paused bool) []tgbotapi.InlineKeyboardButton {
	toggle := tgbotapi.NewInlineKeyboardButtonData("⏸ Pause updates", cbPause)
	if paused {
		toggle = tgbotapi.NewInlineKeyboardButtonData("▶️ Resume updates", cbResume)
	}
	return tgbotapi.NewInlineKeyboardRow(toggle, tgbotapi.NewInlineKeyboardButtonData("✖️ Close", cbClose))
}

func formatProfile(u backend.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s\n", firstNonEmpty(u.Name, "—"))
	fmt.Fprintf(&b, "Email: %s\n", firstNonEmpty(u.Email, "—"))
	fmt.Fprintf(&b, "Phone: %s\n", firstNonEmpty(u.Phone, "—"))
	fmt.Fprintf(&b, "Role: %s\n", firstNonEmpty(string(u.Role), "—"))
	fmt.Fprintf(&b, "Sector: %s", firstNonEmpty(u.Sector, "—"))
	return b.String()
}

// parseProfileUpdate reads "name=Aline Uwase phone=078 sector=Remera".
// Values run until the next key.
func parseProfileUpdate(s string) (backend.ProfileUpdate, bool) {
	var upd backend.ProfileUpdate
	fields := map[string]*string{"name": &upd.Name, "phone": &upd.Phone, "sector": &upd.Sector}
	var cur *string
	found := false
	for _, w := range strings.Fields(s) {
		if k, v, ok := strings.Cut(w, "="); ok {
			if dst, known := fields[strings.ToLower(k)]; known {
				cur, found = dst, true
				*cur = v
				continue
			}
		}
		if cur != nil {
			*cur = strings.TrimSpace(*cur + " " + w)
		}
	}
	return upd, found
}
