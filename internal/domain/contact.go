package domain

const ContactStatusSubscribed = "subscribed"

type Contact struct {
	ID        int64  `db:"id"`
	Email     string `db:"email"`
	FirstName string `db:"first_name"`
	Hash      string `db:"hash"`
	Status    string `db:"status"`
}
