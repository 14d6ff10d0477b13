package model

type Operator struct {
	ID           string `db:"id" json:"id"`
	FirstName    string `db:"first_name" json:"firstName"`
	LastName     string `db:"last_name" json:"lastName"`
	MailAddress  string `db:"mail_address" json:"mailAddress"`
	Comment      string `db:"comment" json:"comment"`
	PasswordHash string `db:"password_hash" json:"-"`
}
