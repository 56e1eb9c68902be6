// Package tools declares the functions the assistant may call and runs
// them.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/salon-voice/pkg/conversation"
	"github.com/teslashibe/salon-voice/pkg/salon"
	"github.com/teslashibe/salon-voice/pkg/ui"
)

// Tool is one callable function: its declaration for the model and the
// handler that runs it. Handler errors are turned into result strings by
// the Dispatcher.
type Tool struct {
	Name        string
	Description string
	Parameters  *conversation.Schema
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// Declaration returns the function declaration sent to the model.
func (t Tool) Declaration() conversation.FunctionDeclaration {
	return conversation.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
}

// Config holds the collaborators the default tools act on. Nil
// collaborators make the matching tools report that they are unavailable.
type Config struct {
	Catalog      salon.Catalog
	Appointments salon.AppointmentStore
	Registry     ui.Registry
	Surface      ui.Surface

	// OnAppointment is called after an appointment is stored.
	OnAppointment func(salon.Appointment)

	Logger *slog.Logger
}

func object(props map[string]*conversation.Schema, required ...string) *conversation.Schema {
	return &conversation.Schema{Type: conversation.TypeObject, Properties: props, Required: required}
}

func str(desc string) *conversation.Schema {
	return &conversation.Schema{Type: conversation.TypeString, Description: desc}
}

func integer(desc string) *conversation.Schema {
	return &conversation.Schema{Type: conversation.TypeInteger, Description: desc}
}

// Tools returns the salon assistant's tool table.
func Tools(cfg Config) []Tool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tools")

	return []Tool{
		// ============================================================
		// scheduleAppointment - book a service for a customer
		// ============================================================
		{
			Name:        "scheduleAppointment",
			Description: "Cria um agendamento para um cliente. Use quando o cliente confirmar serviço, data e horário.",
			Parameters: object(map[string]*conversation.Schema{
				"customerName": str("Nome do cliente"),
				"serviceName":  str("Nome exato do serviço do catálogo"),
				"date":         str("Data no formato YYYY-MM-DD"),
				"time":         str("Horário no formato HH:MM"),
			}, "customerName", "serviceName", "date", "time"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				n := salon.NewAppointment{
					CustomerName: strings.TrimSpace(stringArg(args, "customerName")),
					ServiceName:  strings.TrimSpace(stringArg(args, "serviceName")),
					Date:         strings.TrimSpace(stringArg(args, "date")),
					Time:         strings.TrimSpace(stringArg(args, "time")),
				}
				if n.CustomerName == "" {
					return "Informe o nome do cliente para agendar.", nil
				}
				if n.ServiceName == "" {
					return "Informe o serviço para agendar.", nil
				}
				if cfg.Catalog == nil || cfg.Appointments == nil {
					return "Agenda indisponível no momento.", nil
				}

				if _, err := cfg.Catalog.ServiceByName(ctx, n.ServiceName); err != nil {
					if errors.Is(err, salon.ErrNotFound) {
						return fmt.Sprintf("Serviço '%s' não encontrado.", n.ServiceName), nil
					}
					return "", err
				}
				if _, err := time.Parse(salon.DateLayout, n.Date); err != nil {
					return fmt.Sprintf("Data inválida '%s'. Use o formato AAAA-MM-DD.", n.Date), nil
				}
				if _, err := time.Parse(salon.TimeLayout, n.Time); err != nil {
					return fmt.Sprintf("Horário inválido '%s'. Use o formato HH:MM.", n.Time), nil
				}

				a, err := cfg.Appointments.CreateAppointment(ctx, n)
				if err != nil {
					if errors.Is(err, salon.ErrNotFound) {
						return fmt.Sprintf("Serviço '%s' não encontrado.", n.ServiceName), nil
					}
					return "", err
				}

				logger.Info("appointment created", "id", a.ID, "service", a.ServiceName, "date", a.Date, "time", a.Time)
				if cfg.OnAppointment != nil {
					cfg.OnAppointment(a)
				}
				return fmt.Sprintf("Agendamento para %s criado com sucesso.", a.CustomerName), nil
			},
		},

		// ============================================================
		// showLoginRegistration - open the login/registration panel
		// ============================================================
		{
			Name:        "showLoginRegistration",
			Description: "Abre a tela de login e cadastro do cliente.",
			Parameters:  object(nil),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				if cfg.Surface == nil {
					return "Interface indisponível no momento.", nil
				}
				if err := cfg.Surface.ShowLogin(); err != nil {
					return "", err
				}
				return "Tela de login e cadastro aberta.", nil
			},
		},

		// ============================================================
		// highlightElement - draw attention to a page element
		// ============================================================
		{
			Name:        "highlightElement",
			Description: "Destaca visualmente um elemento da página para orientar o cliente.",
			Parameters: object(map[string]*conversation.Schema{
				"elementId":  str("Identificador do elemento"),
				"durationMs": integer("Duração do destaque em milissegundos"),
			}, "elementId"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				id := stringArg(args, "elementId")
				if cfg.Registry == nil {
					return "Interface indisponível no momento.", nil
				}
				d := time.Duration(intArg(args, "durationMs")) * time.Millisecond
				if err := cfg.Registry.Highlight(id, d); err != nil {
					return elementError(id, err)
				}
				return fmt.Sprintf("Elemento '%s' destacado.", id), nil
			},
		},

		// ============================================================
		// clickElement - press a button or link
		// ============================================================
		{
			Name:        "clickElement",
			Description: "Clica em um botão ou link da página.",
			Parameters: object(map[string]*conversation.Schema{
				"elementId": str("Identificador do elemento"),
			}, "elementId"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				id := stringArg(args, "elementId")
				if cfg.Registry == nil {
					return "Interface indisponível no momento.", nil
				}
				if err := cfg.Registry.Click(id); err != nil {
					return elementError(id, err)
				}
				return fmt.Sprintf("Elemento '%s' clicado.", id), nil
			},
		},

		// ============================================================
		// scrollElement - scroll a page region
		// ============================================================
		{
			Name:        "scrollElement",
			Description: "Rola uma área da página.",
			Parameters: object(map[string]*conversation.Schema{
				"elementId": str("Identificador do elemento"),
				"direction": {
					Type:        conversation.TypeString,
					Description: "Direção da rolagem",
					Enum:        []string{ui.DirectionUp, ui.DirectionDown, ui.DirectionLeft, ui.DirectionRight},
				},
				"amount": integer("Distância em pixels"),
			}, "elementId", "direction"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				id := stringArg(args, "elementId")
				dir := stringArg(args, "direction")
				if cfg.Registry == nil {
					return "Interface indisponível no momento.", nil
				}
				if err := cfg.Registry.Scroll(id, dir, intArg(args, "amount")); err != nil {
					if errors.Is(err, ui.ErrInvalidDirection) {
						return fmt.Sprintf("Direção inválida '%s'. Use up, down, left ou right.", dir), nil
					}
					return elementError(id, err)
				}
				return fmt.Sprintf("Elemento '%s' rolado (%s).", id, dir), nil
			},
		},

		// ============================================================
		// typeIntoElement - fill an input
		// ============================================================
		{
			Name:        "typeIntoElement",
			Description: "Preenche um campo de texto da página.",
			Parameters: object(map[string]*conversation.Schema{
				"elementId": str("Identificador do campo"),
				"value":     str("Texto a inserir"),
			}, "elementId", "value"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				id := stringArg(args, "elementId")
				if cfg.Registry == nil {
					return "Interface indisponível no momento.", nil
				}
				if err := cfg.Registry.SetText(id, stringArg(args, "value")); err != nil {
					return elementError(id, err)
				}
				return fmt.Sprintf("Texto inserido em '%s'.", id), nil
			},
		},

		// ============================================================
		// openManualScheduling - hand the booking over to the form
		// ============================================================
		{
			Name:        "openManualScheduling",
			Description: "Abre o painel de agendamento manual, opcionalmente com um serviço pré-selecionado.",
			Parameters: object(map[string]*conversation.Schema{
				"serviceName": str("Serviço a pré-selecionar"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				if cfg.Surface == nil {
					return "Interface indisponível no momento.", nil
				}
				name := strings.TrimSpace(stringArg(args, "serviceName"))
				if name != "" && cfg.Catalog != nil {
					svc, err := cfg.Catalog.ServiceByName(ctx, name)
					if errors.Is(err, salon.ErrNotFound) {
						return fmt.Sprintf("Serviço '%s' não encontrado.", name), nil
					}
					if err != nil {
						return "", err
					}
					name = svc.Name
				}
				if err := cfg.Surface.OpenScheduling(name); err != nil {
					return "", err
				}
				if name == "" {
					return "Agendamento manual aberto.", nil
				}
				return fmt.Sprintf("Agendamento manual aberto para '%s'.", name), nil
			},
		},

		// ============================================================
		// listServices - read the catalog aloud
		// ============================================================
		{
			Name:        "listServices",
			Description: "Lista os serviços do salão com preço e duração.",
			Parameters:  object(nil),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				if cfg.Catalog == nil {
					return "Catálogo indisponível no momento.", nil
				}
				services, err := cfg.Catalog.Services(ctx)
				if err != nil {
					return "", err
				}
				if len(services) == 0 {
					return "Nenhum serviço cadastrado.", nil
				}
				parts := make([]string, len(services))
				for i, s := range services {
					parts[i] = fmt.Sprintf("%s (%s, %d minutos)", s.Name, salon.FormatPrice(s.Price), s.Duration)
				}
				return strings.Join(parts, "; "), nil
			},
		},

		// ============================================================
		// checkAvailability - is a slot free?
		// ============================================================
		{
			Name:        "checkAvailability",
			Description: "Verifica se um horário está livre antes de agendar.",
			Parameters: object(map[string]*conversation.Schema{
				"date": str("Data no formato YYYY-MM-DD"),
				"time": str("Horário no formato HH:MM"),
			}, "date", "time"),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				date := strings.TrimSpace(stringArg(args, "date"))
				clock := strings.TrimSpace(stringArg(args, "time"))
				if _, err := time.Parse(salon.DateLayout, date); err != nil {
					return fmt.Sprintf("Data inválida '%s'. Use o formato AAAA-MM-DD.", date), nil
				}
				if _, err := time.Parse(salon.TimeLayout, clock); err != nil {
					return fmt.Sprintf("Horário inválido '%s'. Use o formato HH:MM.", clock), nil
				}
				if cfg.Appointments == nil {
					return "Agenda indisponível no momento.", nil
				}
				booked, err := cfg.Appointments.AppointmentsAt(ctx, date, clock)
				if err != nil {
					return "", err
				}
				if len(booked) == 0 {
					return fmt.Sprintf("O horário %s do dia %s está livre.", clock, date), nil
				}
				return fmt.Sprintf("O horário %s do dia %s já tem %d agendamento(s).", clock, date, len(booked)), nil
			},
		},
	}
}

func elementError(id string, err error) (string, error) {
	if errors.Is(err, ui.ErrElementNotFound) {
		return fmt.Sprintf("Elemento '%s' não encontrado.", id), nil
	}
	return "", err
}
