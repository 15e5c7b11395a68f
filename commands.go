package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"storefront/internal/catalog"
	"storefront/internal/data"
	"storefront/internal/format"
	"storefront/internal/order"
	"storefront/internal/predictions"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("204"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	freeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	lockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// =============================================================================
// CATALOG
// =============================================================================

var (
	catalogSearch   string
	catalogCategory string
	catalogSort     string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List catalog products with the storefront filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !catalog.ValidSort(catalogSort) {
			return fmt.Errorf("unknown sort key %q", catalogSort)
		}
		svc := catalog.NewService()
		if err := svc.Load(cfg.Catalog.Path); err != nil {
			return err
		}
		products := svc.Filter(catalog.Query{Search: catalogSearch, Category: catalogCategory, SortBy: catalogSort})
		fmt.Println(renderProducts(products))
		return nil
	},
}

func init() {
	catalogCmd.Flags().StringVarP(&catalogSearch, "query", "q", "", "search term")
	catalogCmd.Flags().StringVar(&catalogCategory, "category", catalog.AllCategories, "category id")
	catalogCmd.Flags().StringVar(&catalogSort, "sort", "", "price-asc, price-desc or name-asc")
}

func renderProducts(products []catalog.Product) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d productos", len(products))))
	b.WriteString("\n")
	b.WriteString(row(headerStyle, "ID", "Nombre", "Categoría", "Peso", "Precio", "Stock"))
	for _, p := range products {
		b.WriteString(row(lipgloss.NewStyle(),
			strconv.Itoa(p.ID), p.Name, p.Category, p.Weight, format.Currency(p.Price), strconv.Itoa(p.Stock)))
	}
	return b.String()
}

var columnWidths = []int{5, 28, 12, 10, 12, 6}

func row(style lipgloss.Style, cells ...string) string {
	rendered := make([]string, len(cells))
	for i, c := range cells {
		w := columnWidths[len(columnWidths)-1]
		if i < len(columnWidths) {
			w = columnWidths[i]
		}
		rendered[i] = style.Width(w).Render(c)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

// =============================================================================
// PICKS
// =============================================================================

var picksCmd = &cobra.Command{
	Use:       "picks [free|premium|all]",
	Short:     "Fetch the predictions sheet and print the picks",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"free", "premium", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := newPicksLoader(cfg)
		if loader == nil {
			return fmt.Errorf("predictions source is not configured")
		}
		defer loader.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		ps, err := loader.Load(ctx)
		if err != nil {
			return err
		}
		if n := loader.Snapshot().Notice; n != nil {
			fmt.Fprintln(os.Stderr, mutedStyle.Render(n.Title+": "+n.Description))
		}

		which := "all"
		if len(args) == 1 {
			which = args[0]
		}
		switch which {
		case "free":
			ps = predictions.Free(ps)
		case "premium":
			ps = predictions.Premium(ps)
		}
		fmt.Println(renderPicks(ps))
		if which != "free" {
			fmt.Println(mutedStyle.Render("Desbloquear: " + predictions.UnlockLink(cfg.Messaging.Number, cfg.Messaging.PremiumMessage)))
		}
		return nil
	},
}

func renderPicks(ps []predictions.Prediction) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d pronósticos", len(ps))))
	b.WriteString("\n")
	for _, p := range ps {
		tag := lockedStyle.Render("PREMIUM")
		if p.IsFree {
			tag = freeStyle.Render("GRATIS ")
		}
		fmt.Fprintf(&b, "%s  %s  %s  @%s  %s\n", tag, headerStyle.Render(p.Match), p.Pick, format.Odds(p.Odds), mutedStyle.Render(p.Status))
		if p.Justification != "" {
			b.WriteString(mutedStyle.Render("         " + p.Justification))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// =============================================================================
// ORDERS
// =============================================================================

var orderCmd = &cobra.Command{
	Use:   "order <id>",
	Short: "Show a stored order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := data.Open(cfg.Database.Path); err != nil {
			return err
		}
		defer data.CloseDB()

		o, err := order.NewRecorder(data.NewOrderRepository()).Lookup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(renderOrder(order.NewConfirmation(*o)))
		return nil
	},
}

func renderOrder(c order.Confirmation) string {
	o := c.Order
	var b strings.Builder
	b.WriteString(titleStyle.Render("Pedido " + o.ID))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s <%s> %s\n", o.Customer.FirstName, o.Customer.LastName, o.Customer.Email, o.Customer.Phone)
	fmt.Fprintf(&b, "%s, %s %s\n", o.Customer.Address, o.Customer.City, o.Customer.PostalCode)
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%s · %s · %s · entrega estimada %s",
		o.Date.Local().Format("2006-01-02 15:04"), o.PaymentMethod, o.DeliveryTime,
		c.EstimatedDelivery.Local().Format("2006-01-02 15:04"))))
	b.WriteString("\n")
	for _, it := range o.Items {
		fmt.Fprintf(&b, "  %dx %s (%s) %s\n", it.Quantity, it.Name, it.Weight, format.Currency(it.Price))
	}
	fmt.Fprintf(&b, "Subtotal %s  Envío %s  %s\n",
		format.Currency(o.Subtotal), format.Currency(o.Shipping), headerStyle.Render("Total "+format.Currency(o.Total)))
	return b.String()
}

var ordersLimit int

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Summarize recent orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := data.Open(cfg.Database.Path); err != nil {
			return err
		}
		defer data.CloseDB()

		orders, err := data.ListOrders(cmd.Context(), ordersLimit)
		if err != nil {
			return err
		}
		fmt.Println(renderSummary(data.ComputeOrderSummary(orders)))
		return nil
	},
}

func init() {
	ordersCmd.Flags().IntVarP(&ordersLimit, "limit", "n", 100, "number of recent orders to include")
}

func renderSummary(s data.OrderSummary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d pedidos, %d artículos", s.TotalOrders, s.TotalItems)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Ingresos %s (envío %s)\n", format.Currency(s.Revenue), format.Currency(s.ShippingCollected))
	fmt.Fprintf(&b, "Pago: tarjeta %d, efectivo %d\n", s.PaymentMethodCounts["card"], s.PaymentMethodCounts["cash"])
	fmt.Fprintf(&b, "Entrega: estándar %d, express %d\n", s.DeliveryTimeCounts["standard"], s.DeliveryTimeCounts["express"])
	for i, p := range s.TopProducts {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "  %-28s %d\n", p.Name, p.Quantity)
	}
	return b.String()
}
