package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cl "tycoon/internal/cli"
	"tycoon/internal/config"
)

// options holds the persistent flags shared by every command.
type options struct {
	apiBase   string
	token     string
	companyID int64
}

func main() {
	var opts options
	root := &cobra.Command{
		Use:          "tyc",
		Short:        "Tycoon game admin and player CLI",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.apiBase, "api", "", "API base URL (default from profile or TYC_API_BASE_URL)")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "admin bearer token (default from profile or TYCOON_ADMIN_TOKEN)")
	root.PersistentFlags().Int64Var(&opts.companyID, "company", 0, "company id (default from profile)")

	root.AddCommand(
		newProfileCmd(&opts),
		newClockCmd(&opts),
		newTickCmd(&opts),
		newEventsCmd(&opts),
		newResetCmd(&opts),
		newUserCmd(&opts),
		newCompanyCmd(&opts),
		newPurchaseCmd(&opts),
		newSaleCmd(&opts),
		newEmployeeCmd(&opts),
		newMachineCmd(&opts),
		newResearchCmd(&opts),
		newAdCmd(&opts),
		newLoanCmd(&opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// resolve merges flags, the saved profile and the environment, in that order.
func (o *options) resolve() (cl.Profile, error) {
	saved, err := cl.LoadProfile()
	if err != nil {
		return cl.Profile{}, err
	}
	env := config.LoadCLIFromEnv()
	p := cl.Profile{APIBaseURL: o.apiBase, AdminToken: o.token, CompanyID: o.companyID}
	return p.Merge(saved).Merge(cl.Profile{APIBaseURL: env.APIBaseURL, AdminToken: env.AdminToken}), nil
}

// run builds a client and calls fn with a bounded context.
func (o *options) run(cmd *cobra.Command, fn func(ctx context.Context, c *cl.Client, p cl.Profile) error) error {
	p, err := o.resolve()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	return fn(ctx, cl.NewClient(p.APIBaseURL, p.AdminToken), p)
}

// company runs fn against the selected company.
func (o *options) company(cmd *cobra.Command, fn func(ctx context.Context, c *cl.Client, companyID int64) error) error {
	return o.run(cmd, func(ctx context.Context, c *cl.Client, p cl.Profile) error {
		if p.CompanyID <= 0 {
			return fmt.Errorf("no company selected: pass --company or run `tyc profile set --company ID`")
		}
		return fn(ctx, c, p.CompanyID)
	})
}

func newProfileCmd(opts *options) *cobra.Command {
	profile := &cobra.Command{
		Use:   "profile",
		Short: "Manage the saved CLI profile",
	}
	profile.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Save --api, --token and --company for later runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			next := cl.Profile{APIBaseURL: opts.apiBase, AdminToken: opts.token, CompanyID: opts.companyID}.Merge(saved)
			if err := cl.SaveProfile(next); err != nil {
				return err
			}
			printSuccess("Profile saved.")
			return nil
		},
	})
	profile.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.resolve()
			if err != nil {
				return err
			}
			if p.AdminToken != "" {
				p.AdminToken = "********"
			}
			return renderJSON(p)
		},
	})
	profile.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the saved profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearProfile(); err != nil {
				return err
			}
			printSuccess("Profile cleared.")
			return nil
		},
	})
	return profile
}

func newClockCmd(opts *options) *cobra.Command {
	clock := &cobra.Command{
		Use:   "clock",
		Short: "Show or control the game clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *cl.Client, _ cl.Profile) error {
				out, err := c.Clock(ctx)
				if err != nil {
					return err
				}
				renderClock(out)
				return nil
			})
		},
	}
	control := func(use, short string, call func(*cl.Client, context.Context) (cl.Clock, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.run(cmd, func(ctx context.Context, c *cl.Client, _ cl.Profile) error {
					out, err := call(c, ctx)
					if err != nil {
						return err
					}
					renderClock(out)
					return nil
				})
			},
		}
	}
	clock.AddCommand(
		control("start", "Resume the clock", (*cl.Client).StartClock),
		control("stop", "Pause the clock", (*cl.Client).StopClock),
	)
	clock.AddCommand(&cobra.Command{
		Use:   "speed <days>",
		Short: "Set how many game days pass per tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *cl.Client, _ cl.Profile) error {
				out, err := c.SetSpeed(ctx, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				renderClock(out)
				return nil
			})
		},
	})
	return clock
}

func newTickCmd(opts *options) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Advance the game by one or more ticks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			return opts.run(cmd, func(ctx context.Context, c *cl.Client, _ cl.Profile) error {
				for i := 0; i < count; i++ {
					out, err := c.Tick(ctx)
					if err != nil {
						return err
					}
					renderTick(out)
					if !out.Advanced {
						return nil
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of ticks")
	return cmd
}

func newEventsCmd(opts *options) *cobra.Command {
	events := &cobra.Command{
		Use:   "events",
		Short: "List, apply and reverse world events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *cl.Client, _ cl.Profile) error {
				out, err := c.ListEvents(ctx)
				if err != nil {
					return err
				}
				return renderEvents(out)
			})
		},
	}

	var (
		spec    cl.EventSpec
		expires string
	)
	apply := &cobra.Command{
		Use:   "apply <kind>",
		Short: "Apply a world event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Kind = strings.TrimSpace(args[0])
			if expires != "" {
				at, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("invalid --expires: %w", err)
				}
				spec.ExpiresAt = at
			}
			return opts.run(cmd, func(ctx context.Context, c *cl.Client, _ cl.Profile) error {
				out, err := c.ApplyEvent(ctx, spec)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Event #%v applied.", out["id"]))
				return renderJSON(out)
			})
		},
	}
	apply.Flags().StringVar(&spec.Rate, "rate", "", "event rate, e.g. 0.15")
	apply.Flags().Float64Var(&spec.Threshold, "threshold", 0, "reliability under which machine_breakdown breaks machines")
	apply.Flags().Int64SliceVar(&spec.CountryIDs, "country", nil, "target country ids")
	apply.Flags().Int64SliceVar(&spec.ProductIDs, "product", nil, "target product ids")
	apply.Flags().Int64SliceVar(&spec.CompanyIDs, "target-company", nil, "target company ids")
	apply.Flags().StringVar(&expires, "expires", "", "RFC3339 game time at which the event is reversed")
	events.AddCommand(apply)

	events.AddCommand(&cobra.Command{
		Use:   "reverse <id>",
		Short: "Reverse an active world event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "event id")
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, c *cl.Client, _ cl.Profile) error {
				if _, err := c.ReverseEvent(ctx, id); err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Event #%d reversed.", id))
				return nil
			})
		},
	})
	return events
}

func newResetCmd(opts *options) *cobra.Command {
	var (
		deleteUser bool
		yes        bool
	)
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Reset a company or the whole game",
	}
	company := &cobra.Command{
		Use:   "company",
		Short: "Delete every record of the selected company",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm("RESET")
				if err != nil || !ok {
					return err
				}
			}
			return opts.company(cmd, func(ctx context.Context, c *cl.Client, companyID int64) error {
				out, err := c.ResetCompany(ctx, companyID, deleteUser)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Company #%d reset.", companyID))
				return renderJSON(out["deleted"])
			})
		},
	}
	company.Flags().BoolVar(&deleteUser, "delete-user", false, "also delete the owning user")
	company.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")

	game := &cobra.Command{
		Use:   "game",
		Short: "Clear all player progress, keeping the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm("RESET")
				if err != nil || !ok {
					return err
				}
			}
			return opts.run(cmd, func(ctx context.Context, c *cl.Client, _ cl.Profile) error {
				out, err := c.ResetGame(ctx)
				if err != nil {
					return err
				}
				printSuccess("Game reset.")
				return renderJSON(out["deleted"])
			})
		},
	}
	game.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	reset.AddCommand(company, game)
	return reset
}

func newUserCmd(opts *options) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage players",
	}
	user.AddCommand(&cobra.Command{
		Use:   "create <name> <email>",
		Short: "Register a player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *cl.Client, _ cl.Profile) error {
				out, err := c.CreateUser(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("User #%v created.", out["id"]))
				return nil
			})
		},
	})
	return user
}

func newCompanyCmd(opts *options) *cobra.Command {
	company := &cobra.Command{
		Use:   "company",
		Short: "Show the selected company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.company(cmd, func(ctx context.Context, c *cl.Client, companyID int64) error {
				out, err := c.CompanySummary(ctx, companyID)
				if err != nil {
					return err
				}
				return renderSummary(out)
			})
		},
	}

	var (
		wilayaID int64
		funds    string
		save     bool
	)
	create := &cobra.Command{
		Use:   "create <user_id> <name>",
		Short: "Found a company for a player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, c *cl.Client, p cl.Profile) error {
				out, err := c.CreateCompany(ctx, userID, args[1], wilayaID, funds)
				if err != nil {
					return err
				}
				id, _ := out["id"].(float64)
				printSuccess(fmt.Sprintf("Company #%d created.", int64(id)))
				if save {
					p.CompanyID = int64(id)
					return cl.SaveProfile(p)
				}
				return nil
			})
		},
	}
	create.Flags().Int64Var(&wilayaID, "wilaya", 0, "home wilaya id")
	create.Flags().StringVar(&funds, "funds", "0", "starting funds")
	create.Flags().BoolVar(&save, "select", false, "save the new company in the profile")
	company.AddCommand(create)

	company.AddCommand(
		companyListCmd(opts, "sales", "List sales offers and orders", (*cl.Client).Sales, renderSales),
		companyListCmd(opts, "employees", "List employees and applicants", (*cl.Client).Employees, renderEmployees),
		companyListCmd(opts, "notifications", "List notifications for the owner", (*cl.Client).Notifications, renderNotifications),
	)
	return company
}

func companyListCmd(opts *options, use, short string, call func(*cl.Client, context.Context, int64) (map[string]any, error), render func(map[string]any) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.company(cmd, func(ctx context.Context, c *cl.Client, companyID int64) error {
				out, err := call(c, ctx, companyID)
				if err != nil {
					return err
				}
				return render(out)
			})
		},
	}
}

func newPurchaseCmd(opts *options) *cobra.Command {
	var quoteOnly bool
	cmd := &cobra.Command{
		Use:   "buy <supplier_id> <product_id> <quantity>",
		Short: "Order raw materials from a supplier",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			supplierID, err := parseID(args[0], "supplier id")
			if err != nil {
				return err
			}
			productID, err := parseID(args[1], "product id")
			if err != nil {
				return err
			}
			qty := strings.TrimSpace(args[2])
			return opts.company(cmd, func(ctx context.Context, c *cl.Client, companyID int64) error {
				if quoteOnly {
					out, err := c.QuotePurchase(ctx, companyID, supplierID, productID, qty)
					if err != nil {
						return err
					}
					return renderJSON(out)
				}
				out, err := c.CreatePurchase(ctx, companyID, supplierID, productID, qty, uuid.NewString())
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Purchase #%v ordered.", out["id"]))
				return renderJSON(out)
			})
		},
	}
	cmd.Flags().BoolVar(&quoteOnly, "quote", false, "only price the order")
	return cmd
}

func newSaleCmd(opts *options) *cobra.Command {
	sale := &cobra.Command{
		Use:   "sale",
		Short: "Act on sales offers",
	}
	sale.AddCommand(&cobra.Command{
		Use:   "confirm <sale_id>",
		Short: "Accept a sales offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			saleID, err := parseID(args[0], "sale id")
			if err != nil {
				return err
			}
			return opts.company(cmd, func(ctx context.Context, c *cl.Client, companyID int64) error {
				if _, err := c.ConfirmSale(ctx, companyID, saleID, uuid.NewString()); err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Sale #%d confirmed.", saleID))
				return nil
			})
		},
	})
	return sale
}

func newEmployeeCmd(opts *options) *cobra.Command {
	employee := &cobra.Command{
		Use:   "employee",
		Short: "Hire, fire, promote and assign employees",
	}
	action := func(use, short string, nargs int, body func(args []string) (map[string]any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(nargs),
			RunE: func(cmd *cobra.Command, args []string) error {
				employeeID, err := parseID(args[0], "employee id")
				if err != nil {
					return err
				}
				in, err := body(args)
				if err != nil {
					return err
				}
				verb := strings.Fields(use)[0]
				return opts.company(cmd, func(ctx context.Context, c *cl.Client, companyID int64) error {
					if _, err := c.EmployeeAction(ctx, companyID, employeeID, verb, in, uuid.NewString()); err != nil {
						return err
					}
					printSuccess(fmt.Sprintf("Employee #%d: %s done.", employeeID, verb))
					return nil
				})
			},
		}
	}
	noBody := func([]string) (map[string]any, error) { return nil, nil }
	employee.AddCommand(
		action("hire <employee_id>", "Hire an applicant", 1, noBody),
		action("fire <employee_id>", "Let an employee go", 1, noBody),
		action("promote <employee_id> <salary>", "Raise an employee's monthly salary", 2, func(args []string) (map[string]any, error) {
			return map[string]any{"salary_month": strings.TrimSpace(args[1])}, nil
		}),
		action("assign <employee_id> <machine_id>", "Put an employee on a machine", 2, func(args []string) (map[string]any, error) {
			machineID, err := parseID(args[1], "machine id")
			if err != nil {
				return nil, err
			}
			return map[string]any{"machine_id": machineID}, nil
		}),
	)
	return employee
}

func newMachineCmd(opts *options) *cobra.Command {
	machine := &cobra.Command{
		Use:   "machine",
		Short: "Buy and operate machines",
	}
	machine.AddCommand(&cobra.Command{
		Use:   "buy <catalog_machine_id>",
		Short: "Buy a machine from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			machineID, err := parseID(args[0], "machine id")
			if err != nil {
				return err
			}
			return opts.company(cmd, func(ctx context.Context, c *cl.Client, companyID int64) error {
				out, err := c.BuyMachine(ctx, companyID, machineID, uuid.NewString())
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Machine #%v installed.", out["id"]))
				return nil
			})
		},
	})
	action := func(use, short, verb string, nargs int, body func(args []string) map[string]any) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(nargs),
			RunE: func(cmd *cobra.Command, args []string) error {
				machineID, err := parseID(args[0], "machine id")
				if err != nil {
					return err
				}
				return opts.company(cmd, func(ctx context.Context, c *cl.Client, companyID int64) error {
					out, err := c.MachineAction(ctx, companyID, machineID, verb, body(args), uuid.NewString())
					if err != nil {
						return err
					}
					printSuccess(fmt.Sprintf("Machine #%d: %s done.", machineID, verb))
					if _, ok := out["ok"]; ok {
						return nil
					}
					return renderJSON(out)
				})
			},
		}
	}
	noBody := func([]string) map[string]any { return nil }
	machine.AddCommand(
		action("activate <machine_id>", "Switch a machine on", "activate", 1, noBody),
		action("deactivate <machine_id>", "Switch a machine off", "deactivate", 1, noBody),
		action("produce <machine_id> <quantity>", "Start a production run", "production", 2, func(args []string) map[string]any {
			return map[string]any{"quantity": strings.TrimSpace(args[1])}
		}),
		action("maintain <machine_id>", "Send a machine to maintenance", "maintenance", 1, noBody),
	)
	return machine
}

func newResearchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "research <technology_id>",
		Short: "Start researching a technology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			techID, err := parseID(args[0], "technology id")
			if err != nil {
				return err
			}
			return opts.company(cmd, func(ctx context.Context, c *cl.Client, companyID int64) error {
				if _, err := c.StartResearch(ctx, companyID, techID, uuid.NewString()); err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Research on technology #%d started.", techID))
				return nil
			})
		},
	}
}

func newAdCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ad <package_id> <product_id>",
		Short: "Buy an advertising campaign for a product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			packageID, err := parseID(args[0], "package id")
			if err != nil {
				return err
			}
			productID, err := parseID(args[1], "product id")
			if err != nil {
				return err
			}
			return opts.company(cmd, func(ctx context.Context, c *cl.Client, companyID int64) error {
				if _, err := c.BuyAd(ctx, companyID, packageID, productID, uuid.NewString()); err != nil {
					return err
				}
				printSuccess("Campaign started.")
				return nil
			})
		},
	}
}

func newLoanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "loan <bank_id> <amount>",
		Short: "Borrow from a bank",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bankID, err := parseID(args[0], "bank id")
			if err != nil {
				return err
			}
			return opts.company(cmd, func(ctx context.Context, c *cl.Client, companyID int64) error {
				out, err := c.TakeLoan(ctx, companyID, bankID, strings.TrimSpace(args[1]), uuid.NewString())
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Loan #%v granted.", out["id"]))
				return renderJSON(out)
			})
		},
	}
}

func parseID(raw, label string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", label)
	}
	return v, nil
}
