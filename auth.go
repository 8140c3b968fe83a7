package imap

import (
	"fmt"

	"github.com/sqs/go-xoauth2"
)

// Authenticate performs XOAUTH2 authentication using an access token
func (d *Dialer) Authenticate(user string, accessToken string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authenticate(user, accessToken)
}

// Login performs LOGIN authentication using username and password
func (d *Dialer) Login(username string, password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.login(username, password)
}

// Auth failures must not trigger reconnection, so neither retries.

func (d *Dialer) authenticate(user string, accessToken string) (err error) {
	b64 := xoauth2.XOAuth2String(user, accessToken)
	_, err = d.exec(fmt.Sprintf("AUTHENTICATE XOAUTH2 %s", b64), false, 0, nil)
	return err
}

func (d *Dialer) login(username string, password string) (err error) {
	_, err = d.exec(fmt.Sprintf("LOGIN %s %s", quoteString(username), quoteString(password)), false, 0, nil)
	return err
}
