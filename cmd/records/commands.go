package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ehr/records/internal/domain/patient"
)

// withSession loads the store, logs in with the --email and --password
// flags and hands the session to fn.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, sess *patient.Session) error) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	ctx := cmd.Context()
	a, err := cliApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sess := a.svc.NewSession()
	if _, err := sess.Login(ctx, email, password); err != nil {
		return err
	}
	return fn(ctx, sess)
}

func addLoginFlags(cmd *cobra.Command) {
	cmd.Flags().String("email", "", "Email to log in with")
	cmd.Flags().String("password", "", "Password to log in with")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
}

func addRegistrationFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Full name")
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("password", "", "Password")
	cmd.Flags().String("conditions", "", "Comma-separated conditions")
	cmd.Flags().String("prescriptions", "", "Comma-separated prescriptions")
}

func registrationFromFlags(cmd *cobra.Command) patient.Registration {
	var in patient.Registration
	in.Name, _ = cmd.Flags().GetString("name")
	in.Email, _ = cmd.Flags().GetString("email")
	in.Credential, _ = cmd.Flags().GetString("password")
	in.Conditions, _ = cmd.Flags().GetString("conditions")
	in.Prescriptions, _ = cmd.Flags().GetString("prescriptions")
	return in
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := cliApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.svc.Register(ctx, registrationFromFlags(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s with UID %s\n", rec.Email, rec.UID)
			return nil
		},
	}
	addRegistrationFlags(cmd)
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show your record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, sess *patient.Session) error {
				return printRecord(cmd.OutOrStdout(), sess.Current())
			})
		},
	}
	addLoginFlags(cmd)
	return cmd
}

// listUpdateCmd builds the self-service "conditions" and "prescriptions"
// commands.
func listUpdateCmd(field, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   field + " <comma-separated list>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, sess *patient.Session) error {
				rec, err := updateList(ctx, sess, field, sess.Current().Email, args[0])
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), rec)
			})
		},
	}
	addLoginFlags(cmd)
	return cmd
}

func updateList(ctx context.Context, sess *patient.Session, field, email, raw string) (*patient.Record, error) {
	if field == "prescriptions" {
		return sess.UpdatePrescriptions(ctx, email, raw)
	}
	return sess.UpdateConditions(ctx, email, raw)
}

func passwordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password <new password>",
		Short: "Change your password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, sess *patient.Session) error {
				if _, err := sess.ResetPassword(ctx, sess.Current().Email, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password updated")
				return nil
			})
		},
	}
	addLoginFlags(cmd)
	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage all patient records (admin login required)",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, sess *patient.Session) error {
				records, err := sess.Records(ctx)
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), records)
			})
		},
	}
	addLoginFlags(listCmd)
	cmd.AddCommand(listCmd)

	getCmd := &cobra.Command{
		Use:   "show <email>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, sess *patient.Session) error {
				rec, err := sess.Record(ctx, args[0])
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), rec)
			})
		},
	}
	addLoginFlags(getCmd)
	cmd.AddCommand(getCmd)

	for _, field := range []string{"conditions", "prescriptions"} {
		c := &cobra.Command{
			Use:   field + " <email> <comma-separated list>",
			Short: "Replace the " + field + " of a record",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, func(ctx context.Context, sess *patient.Session) error {
					rec, err := updateList(ctx, sess, field, args[0], args[1])
					if err != nil {
						return err
					}
					return printRecord(cmd.OutOrStdout(), rec)
				})
			},
		}
		addLoginFlags(c)
		cmd.AddCommand(c)
	}

	resetCmd := &cobra.Command{
		Use:   "reset-password <email> <new password>",
		Short: "Overwrite the password of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, sess *patient.Session) error {
				if _, err := sess.ResetPassword(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Password reset for %s\n", args[0])
				return nil
			})
		},
	}
	addLoginFlags(resetCmd)
	cmd.AddCommand(resetCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <email>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, sess *patient.Session) error {
				if err := sess.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
	addLoginFlags(deleteCmd)
	cmd.AddCommand(deleteCmd)

	cmd.AddCommand(bootstrapCmd())
	return cmd
}

var errAdminExists = errors.New("an admin record already exists")

// bootstrapCmd seeds the first admin. It refuses once any admin exists so
// it cannot be used to escalate later.
func bootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first admin record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := cliApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			records, err := a.svc.List(ctx)
			if err != nil {
				return err
			}
			for _, r := range records {
				if r.IsAdmin() {
					return errAdminExists
				}
			}

			rec, err := a.svc.CreateAdmin(ctx, registrationFromFlags(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s with UID %s\n", rec.Email, rec.UID)
			return nil
		},
	}
	addRegistrationFlags(cmd)
	return cmd
}

func printRecord(out io.Writer, rec *patient.Record) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", rec.Name)
	fmt.Fprintf(w, "Email:\t%s\n", rec.Email)
	fmt.Fprintf(w, "Role:\t%s\n", rec.Role)
	fmt.Fprintf(w, "UID:\t%s\n", rec.UID)
	fmt.Fprintf(w, "Conditions:\t%s\n", patient.JoinList(rec.Conditions))
	fmt.Fprintf(w, "Prescriptions:\t%s\n", patient.JoinList(rec.Prescriptions))
	return w.Flush()
}

func printRecords(out io.Writer, records []*patient.Record) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMAIL\tROLE\tUID\tCONDITIONS\tPRESCRIPTIONS")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Name, r.Email, r.Role, r.UID, patient.JoinList(r.Conditions), patient.JoinList(r.Prescriptions))
	}
	return w.Flush()
}
