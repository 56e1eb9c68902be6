package salon

import (
	"context"
	"fmt"
	"strings"
)

// ContextBlocks renders the catalog and directory as plain text for the
// model's system instruction.
func ContextBlocks(ctx context.Context, catalog Catalog, directory Directory) (string, error) {
	var b strings.Builder

	if catalog != nil {
		services, err := catalog.Services(ctx)
		if err != nil {
			return "", fmt.Errorf("list services: %w", err)
		}
		b.WriteString("Serviços disponíveis:\n")
		if len(services) == 0 {
			b.WriteString("- nenhum serviço cadastrado\n")
		}
		for _, s := range services {
			fmt.Fprintf(&b, "- %s: %s, %d minutos\n", s.Name, FormatPrice(s.Price), s.Duration)
		}
	}

	if directory != nil {
		people, err := directory.People(ctx)
		if err != nil {
			return "", fmt.Errorf("list people: %w", err)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		writePeople(&b, "Funcionários:", people, RoleEmployee)
		b.WriteString("\n")
		writePeople(&b, "Clientes:", people, RoleCustomer)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func writePeople(b *strings.Builder, title string, people []Person, role Role) {
	b.WriteString(title + "\n")
	n := 0
	for _, p := range people {
		if p.Role != role {
			continue
		}
		status := "ativo"
		if !p.Active {
			status = "inativo"
		}
		fmt.Fprintf(b, "- %s, telefone %s, %s\n", p.Name, p.Phone, status)
		n++
	}
	if n == 0 {
		b.WriteString("- nenhum cadastro\n")
	}
}

// FormatPrice renders a price in reais, e.g. "R$ 80,00".
func FormatPrice(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	return "R$ " + strings.Replace(s, ".", ",", 1)
}
