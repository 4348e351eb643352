package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/mckhtech/uni360-go/calc"
	"github.com/mckhtech/uni360-go/client"
	"github.com/mckhtech/uni360-go/credentials"
	"github.com/mckhtech/uni360-go/internal/config"
	"github.com/mckhtech/uni360-go/portal"
	"github.com/mckhtech/uni360-go/session"
	"github.com/mckhtech/uni360-go/token"
)

const usage = `usage: uni360 <command> [flags]

commands:
  login        -email -password      authenticate with the portal
  login-google                       authenticate via Google
  logout                             end the session
  whoami                             show the cached user
  dashboard                          show the dashboard summary
  universities -country -search      browse universities
  ielts        -l -r -w -s           IELTS overall band
  ects         -lecture -self -weeks ECTS credits
  grade        -score -max -min      German grade conversion
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "uni360: %s\n", err)
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	if len(os.Args) < 2 {
		displayAppName("UNI360")
		fmt.Print(usage)
		return nil
	}

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "login":
		return app.login(ctx, args)
	case "login-google":
		return app.loginGoogle(ctx)
	case "logout":
		return app.logout(ctx)
	case "whoami":
		return app.whoami(ctx)
	case "dashboard":
		return app.dashboard(ctx)
	case "universities":
		return app.universities(ctx, args)
	case "ielts":
		return runIELTS(args)
	case "ects":
		return runECTS(args)
	case "grade":
		return runGrade(args)
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// app wires the SDK components together the way any consumer would.
type app struct {
	cfg     *config.Config
	manager *session.Manager
	portal  *portal.Service
}

func buildApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	store := credentials.NewFileStore(cfg.CredentialsFile, logger)
	resolver := token.NewResolver(token.Config{
		UseStaticToken: cfg.UseStaticToken,
		StaticToken:    cfg.StaticToken,
		EnvToken:       cfg.EnvToken,
		EndpointURL:    strings.TrimRight(cfg.APIBaseURL, "/") + cfg.TokenEndpoint,
		CacheTTL:       cfg.TokenCacheTTL,
	}, store, logger)

	authAPI := session.NewHTTPAuthAPI(cfg.APIBaseURL, nil, logger)
	manager, err := session.NewManager(store, resolver, authAPI, logger,
		session.WithRefreshLead(cfg.RefreshLead))
	if err != nil {
		return nil, err
	}

	apiClient := client.New(cfg.APIBaseURL, cfg.ClientID, resolver, logger, client.WithTimeout(cfg.HTTPTimeout))
	return &app{
		cfg:     cfg,
		manager: manager,
		portal:  portal.NewService(apiClient, logger),
	}, nil
}

func (a *app) login(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("login", flag.ExitOnError)
	email := flags.String("email", "", "account email")
	password := flags.String("password", "", "account password")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("login requires -email and -password")
	}

	user, err := a.manager.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", user.DisplayName())
	return nil
}

// loginGoogle runs the authorization-code flow against Google, then exchanges
// the resulting ID token for a portal session.
func (a *app) loginGoogle(ctx context.Context) error {
	if a.cfg.Google.ClientID == "" {
		return errors.New("login-google requires UNI360_GOOGLE_CLIENT_ID")
	}
	oauthCfg := &oauth2.Config{
		ClientID:     a.cfg.Google.ClientID,
		ClientSecret: a.cfg.Google.ClientSecret,
		RedirectURL:  a.cfg.Google.RedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}

	fmt.Printf("Open this URL in a browser and authorize:\n\n  %s\n\nPaste the code: ", oauthCfg.AuthCodeURL("state-uni360", oauth2.AccessTypeOffline))
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return err
	}

	oauthToken, err := oauthCfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	idToken, ok := oauthToken.Extra("id_token").(string)
	if !ok || idToken == "" {
		return errors.New("google token response carried no id_token")
	}

	// Check the token against Google's keys before handing it to the portal.
	verifier, err := session.NewGoogleVerifier(ctx, a.cfg.Google.ClientID)
	if err != nil {
		return err
	}
	claims, err := verifier.Verify(ctx, idToken)
	if err != nil {
		return err
	}

	user, err := a.manager.LoginWithGoogle(ctx, idToken)
	if err != nil {
		return err
	}
	name := user.DisplayName()
	if name == "" {
		name = claims.Email
	}
	fmt.Printf("Logged in as %s\n", name)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.manager.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if err := a.manager.RestoreSession(ctx); err != nil {
		return err
	}
	snap := a.manager.Snapshot()
	if !snap.IsAuthenticated {
		fmt.Println("Not logged in")
		return nil
	}
	fmt.Printf("%s <%s>\n", snap.User.DisplayName(), snap.User.Email)
	if snap.User.TargetCountry != "" {
		fmt.Printf("Target country: %s (stage: %s)\n", snap.User.TargetCountry, snap.User.Stage)
	}
	return nil
}

func (a *app) dashboard(ctx context.Context) error {
	if err := a.manager.RestoreSession(ctx); err != nil {
		return err
	}
	summary, err := a.portal.Dashboard(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Applications: %d (%d pending), offers: %d, missing documents: %d, visa: %s\n",
		summary.ApplicationsTotal, summary.ApplicationsPending, summary.OffersReceived,
		summary.DocumentsMissing, summary.VisaStatus)
	return nil
}

func (a *app) universities(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("universities", flag.ExitOnError)
	country := flags.String("country", "", "filter by country")
	search := flags.String("search", "", "free-text search")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := a.manager.RestoreSession(ctx); err != nil {
		return err
	}

	list, err := a.portal.Universities(ctx, portal.UniversityFilter{Country: *country, Search: *search})
	if err != nil {
		return err
	}
	for _, u := range list {
		fmt.Printf("%-30s %s, %s\n", u.Name, u.City, u.Country)
	}
	return nil
}

func runIELTS(args []string) error {
	flags := flag.NewFlagSet("ielts", flag.ExitOnError)
	l := flags.Float64("l", 0, "listening score")
	r := flags.Float64("r", 0, "reading score")
	w := flags.Float64("w", 0, "writing score")
	s := flags.Float64("s", 0, "speaking score")
	if err := flags.Parse(args); err != nil {
		return err
	}

	band, err := calc.OverallBand(calc.IELTSScores{Listening: *l, Reading: *r, Writing: *w, Speaking: *s})
	if err != nil {
		return err
	}
	fmt.Printf("Overall band: %.1f\n", band)
	return nil
}

func runECTS(args []string) error {
	flags := flag.NewFlagSet("ects", flag.ExitOnError)
	lecture := flags.Float64("lecture", 0, "lecture hours per week")
	selfStudy := flags.Float64("self", 0, "self-study hours per week")
	weeks := flags.Int("weeks", 0, "weeks in semester")
	if err := flags.Parse(args); err != nil {
		return err
	}

	credits, err := calc.Credits(calc.ECTSInput{LectureHours: *lecture, SelfStudyHours: *selfStudy, Weeks: *weeks})
	if err != nil {
		return err
	}
	fmt.Printf("ECTS credits: %.2f\n", credits)
	return nil
}

func runGrade(args []string) error {
	flags := flag.NewFlagSet("grade", flag.ExitOnError)
	score := flags.Float64("score", 0, "achieved score")
	maxScore := flags.Float64("max", 100, "maximum possible score")
	minScore := flags.Float64("min", 0, "minimum passing score")
	if err := flags.Parse(args); err != nil {
		return err
	}

	result, err := calc.GermanGrade(calc.GermanGradeInput{Score: *score, MaxPossible: *maxScore, MinPassing: *minScore})
	if err != nil {
		return err
	}
	fmt.Printf("German grade: %.1f (%s)\n", result.Grade, result.Classification)
	return nil
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(parsed).With().Timestamp().Logger()
}

func displayAppName(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
