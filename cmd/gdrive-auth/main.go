// Command gdrive-auth runs the OAuth consent flow once and prints the refresh
// token the gdrive storage provider needs (GDRIVE_REFRESH_TOKEN).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"chatreel/internal/config"
	"chatreel/internal/pkg/errors"
	"chatreel/internal/pkg/logger"
)

const consentTimeout = 3 * time.Minute

func main() {
	log := logger.New(logger.Config{Level: "info", Format: "text", ServiceName: "gdrive-auth"})
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}
	if cfg.Storage.GDriveClientID == "" || cfg.Storage.GDriveClientSecret == "" {
		log.LogFatal("missing credentials", errors.ValidationField("GDRIVE_CLIENT_ID", "GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required"))
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.LogFatal("failed to open callback listener", err)
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)
	conf := &oauth2.Config{
		ClientID:     cfg.Storage.GDriveClientID,
		ClientSecret: cfg.Storage.GDriveClientSecret,
		Endpoint:     google.Endpoint,
		// Only files created by this app.
		Scopes:      []string{drive.DriveFileScope},
		RedirectURL: redirectURL,
	}

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code, err := callbackCode(r, state)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			errCh <- err
			return
		}
		fmt.Fprintln(w, "OK. You can close this window and return to the terminal.")
		codeCh <- code
	})

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		_ = srv.Serve(ln)
	}()

	// Offline access plus forced consent so Google returns a refresh token.
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("\nOpen this URL in your browser:\n\n%s\n\n", authURL)
	log.Info("waiting for authorization", "redirect_url", redirectURL, "timeout", consentTimeout.String())

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		_ = srv.Close()
		log.LogFatal("authorization failed", err)
	case <-time.After(consentTimeout):
		_ = srv.Close()
		log.LogFatal("authorization failed", errors.Timeout("oauth consent"))
	}
	_ = srv.Close()

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		log.LogFatal("token exchange failed", err)
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		log.Warn("no refresh token returned; revoke the app at https://myaccount.google.com/permissions and run again")
		return
	}

	if email, err := driveAccount(ctx, conf, tok); err != nil {
		log.WithError(err).Warn("token obtained but drive check failed")
	} else {
		log.Info("drive access verified", "account", email)
	}

	fmt.Printf("\nGDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
}

func callbackCode(r *http.Request, state string) (string, error) {
	q := r.URL.Query()
	if q.Get("state") != state {
		return "", errors.New(errors.CodeForbidden, "invalid state")
	}
	if e := q.Get("error"); e != "" {
		return "", errors.New(errors.CodeForbidden, "auth error: "+e)
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.Validation("missing code")
	}
	return code, nil
}

// driveAccount makes one authenticated call so a bad grant shows up here
// rather than on the first upload.
func driveAccount(ctx context.Context, conf *oauth2.Config, tok *oauth2.Token) (string, error) {
	svc, err := drive.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx, tok)))
	if err != nil {
		return "", err
	}
	about, err := svc.About.Get().Fields("user(emailAddress)").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if about.User == nil {
		return "", nil
	}
	return about.User.EmailAddress, nil
}
