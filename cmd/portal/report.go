package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/vaidashi/support-portal/internal/engine"
	"github.com/vaidashi/support-portal/internal/service"
)

func newReportCmd(rt *runtime) *cobra.Command {
	var month, year int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the month-over-month analytics report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStores(ctx, rt.cfg, rt.logger)

			if err != nil {
				return err
			}

			defer st.Close()

			orders := service.NewOrderService(st.orders, service.Options{
				HighPriorityAmount:    rt.cfg.HighPriorityAmount,
				ReminderThresholdDays: rt.cfg.Reminders.ThresholdDays,
			}, rt.logger)

			current := orders.CurrentPeriod()

			if month == 0 {
				month = int(current.Month)
			}
			if year == 0 {
				year = current.Year
			}

			period, err := engine.NewPeriod(month, year)

			if err != nil {
				return err
			}

			report, err := orders.Analytics(ctx, period)

			if err != nil {
				return err
			}

			return renderReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().IntVar(&month, "month", 0, "month 1-12 (default current month)")
	cmd.Flags().IntVar(&year, "year", 0, "year (default current year)")

	return cmd
}

func renderReport(w io.Writer, report engine.Report) error {
	fmt.Fprintf(w, "Analytics for %s (compared with %s)\n\n", report.Period, report.PreviousPeriod)

	cur, prev := report.Stats, report.PreviousStats

	summary := tablewriter.NewWriter(w)
	summary.Header("Metric", "Current", "Previous", "Growth")

	rows := [][]string{
		{"Orders", strconv.Itoa(cur.OrderCount), strconv.Itoa(prev.OrderCount), formatGrowth(report.OrderGrowth)},
		{"Revenue", cur.Revenue.StringFixed(2), prev.Revenue.StringFixed(2), formatGrowth(report.RevenueGrowth)},
		{"Items", strconv.Itoa(cur.ItemCount), strconv.Itoa(prev.ItemCount), ""},
		{"Completed", strconv.Itoa(cur.CompletedCount), strconv.Itoa(prev.CompletedCount), ""},
		{"Pending", strconv.Itoa(cur.PendingCount), strconv.Itoa(prev.PendingCount), ""},
		{"High priority", strconv.Itoa(cur.HighPriorityCount), strconv.Itoa(prev.HighPriorityCount), ""},
		{"Avg order value", cur.AvgOrderValue.StringFixed(2), prev.AvgOrderValue.StringFixed(2), ""},
	}

	for _, row := range rows {
		if err := summary.Append(row); err != nil {
			return err
		}
	}

	if err := summary.Render(); err != nil {
		return err
	}

	if len(report.Orders) == 0 {
		fmt.Fprintln(w, "\nNo orders in this period.")
		return nil
	}

	fmt.Fprintln(w)

	orders := tablewriter.NewWriter(w)
	orders.Header("Order", "Date", "Customer", "Amount", "Items", "Status", "Fulfillment")

	for _, o := range report.Orders {
		err := orders.Append([]string{
			o.OrderNumber,
			o.OrderDate.String(),
			o.CustomerName,
			o.Amount.StringFixed(2),
			strconv.Itoa(o.ItemCount()),
			engine.ResolveStatus(o.Stages),
			engine.FulfillmentLabel(o.Stages),
		})

		if err != nil {
			return err
		}
	}

	return orders.Render()
}

func formatGrowth(g float64) string {
	return fmt.Sprintf("%+.1f%%", g)
}
