package main

import (
	"bufio"
	"fmt"
	"strings"

	"braintacle/model"
	"braintacle/operator"

	"github.com/spf13/cobra"
)

var (
	operatorFirstName string
	operatorLastName  string
	operatorMail      string
)

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage operator accounts",
}

var operatorAddCmd = &cobra.Command{
	Use:   "add [login]",
	Short: "Create an operator account",
	Long: `Creates an operator account. The password is read from the first line
of standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		password, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && password == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(password, "\r\n")

		s := operator.NewService(db, logger)
		o, err := s.Create(args[0], password, model.Operator{
			FirstName:   operatorFirstName,
			LastName:    operatorLastName,
			MailAddress: operatorMail,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Operator '%s' created.\n", o.ID)
		return nil
	},
}

var operatorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List operator accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		operators, err := operator.NewService(db, logger).List()
		if err != nil {
			return err
		}
		for _, o := range operators {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s %s\t%s\n", o.ID, o.FirstName, o.LastName, o.MailAddress)
		}
		return nil
	},
}

func init() {
	operatorAddCmd.Flags().StringVar(&operatorFirstName, "first-name", "", "first name")
	operatorAddCmd.Flags().StringVar(&operatorLastName, "last-name", "", "last name")
	operatorAddCmd.Flags().StringVar(&operatorMail, "mail", "", "mail address")
	operatorCmd.AddCommand(operatorAddCmd, operatorListCmd)
	rootCmd.AddCommand(operatorCmd)
}
