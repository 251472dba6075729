package tools

import (
	"context"

	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/usecase"
)

// RegisterBuiltin installs the stock tool set into the registry. Tenants
// enable them per agent through the allow-list.
func RegisterBuiltin(reg *usecase.ToolRegistry, host *HostClient) error {
	builtin := []model.Tool{
		bookAppointment(host),
		sendFollowupMessage(host),
		addCRMNote(host),
	}
	for _, t := range builtin {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func bookAppointment(host *HostClient) model.Tool {
	return model.Tool{
		ID:          "book_appointment",
		Name:        "book_appointment",
		Description: "Book an appointment for the lead. Use only after the lead has agreed to a specific date and time.",
		Category:    "scheduling",
		Permission:  "appointments:write",
		Enabled:     true,
		Parameters: model.ParamSchema{
			Properties: map[string]model.ParamSpec{
				"date":     {Type: "string", Description: "Appointment date, YYYY-MM-DD"},
				"time":     {Type: "string", Description: "Appointment time, HH:MM, 24h clock"},
				"service":  {Type: "string", Description: "Requested service, if mentioned"},
				"duration": {Type: "integer", Description: "Duration in minutes, default 30"},
			},
			Required: []string{"date", "time"},
		},
		Execute: func(ctx context.Context, ec model.ExecContext, params map[string]any) (any, error) {
			payload := map[string]any{
				"tenant_id":       ec.TenantID,
				"agent_id":        ec.AgentID,
				"conversation_id": ec.ConversationID,
				"date":            params["date"],
				"time":            params["time"],
				"service":         params["service"],
				"duration":        params["duration"],
			}
			return host.post(ctx, "/v1/appointments", payload)
		},
	}
}

func sendFollowupMessage(host *HostClient) model.Tool {
	return model.Tool{
		ID:          "send_followup_message",
		Name:        "send_followup_message",
		Description: "Schedule a follow-up message to the lead at a later time. Use when the lead asks to be contacted later.",
		Category:    "messaging",
		Permission:  "messages:write",
		Enabled:     true,
		Parameters: model.ParamSchema{
			Properties: map[string]model.ParamSpec{
				"message": {Type: "string", Description: "The follow-up message text"},
				"send_at": {Type: "string", Description: "When to send it, RFC 3339"},
				"channel": {Type: "string", Description: "Delivery channel", Enum: []string{"sms", "email", "whatsapp"}},
			},
			Required: []string{"message", "send_at"},
		},
		Execute: func(ctx context.Context, ec model.ExecContext, params map[string]any) (any, error) {
			payload := map[string]any{
				"tenant_id":       ec.TenantID,
				"agent_id":        ec.AgentID,
				"conversation_id": ec.ConversationID,
				"message":         params["message"],
				"send_at":         params["send_at"],
				"channel":         params["channel"],
			}
			return host.post(ctx, "/v1/followups", payload)
		},
	}
}

func addCRMNote(host *HostClient) model.Tool {
	return model.Tool{
		ID:          "add_crm_note",
		Name:        "add_crm_note",
		Description: "Attach a note to the lead's CRM record. Use to record important facts the lead shares.",
		Category:    "crm",
		Permission:  "",
		Enabled:     true,
		Parameters: model.ParamSchema{
			Properties: map[string]model.ParamSpec{
				"note": {Type: "string", Description: "Note text"},
			},
			Required: []string{"note"},
		},
		Execute: func(ctx context.Context, ec model.ExecContext, params map[string]any) (any, error) {
			payload := map[string]any{
				"tenant_id":       ec.TenantID,
				"conversation_id": ec.ConversationID,
				"note":            params["note"],
			}
			return host.post(ctx, "/v1/crm/notes", payload)
		},
	}
}
