package cmd

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/present"
)

// flagParseError is a cobra flag error with the offending flag extracted.
type flagParseError struct {
	err    error
	reason string
	flag   string
}

var (
	unknownFlagRe  = regexp.MustCompile(`^unknown flag: (--?\S+)`)
	unknownShortRe = regexp.MustCompile(`^unknown shorthand flag: '(.)'`)
	needsArgRe     = regexp.MustCompile(`^flag needs an argument: (?:'(\w)' in )?(-{1,2}\S+)`)
	invalidValueRe = regexp.MustCompile(`^invalid argument ".*" for "([^"]+)" flag`)
)

func newFlagParseError(err error) flagParseError {
	msg := err.Error()
	switch {
	case unknownFlagRe.MatchString(msg):
		return flagParseError{err: err, reason: "Flag %s is missing.", flag: unknownFlagRe.FindStringSubmatch(msg)[1]}
	case unknownShortRe.MatchString(msg):
		return flagParseError{err: err, reason: "Flag %s is missing.", flag: "-" + unknownShortRe.FindStringSubmatch(msg)[1]}
	case needsArgRe.MatchString(msg):
		m := needsArgRe.FindStringSubmatch(msg)
		flag := m[2]
		if m[1] != "" {
			flag = "-" + m[1]
		}
		return flagParseError{err: err, reason: "Flag %s needs an argument.", flag: flag}
	case invalidValueRe.MatchString(msg):
		return flagParseError{err: err, reason: "Flag %s have an invalid argument.", flag: invalidValueRe.FindStringSubmatch(msg)[1]}
	default:
		return flagParseError{err: err, reason: "Flag %s could not be parsed.", flag: strings.SplitN(msg, ":", 2)[0]}
	}
}

func (f flagParseError) Error() string        { return f.err.Error() }
func (f flagParseError) Unwrap() error        { return f.err }
func (f flagParseError) ReasonFormat() string { return f.reason }
func (f flagParseError) Flag() string         { return f.flag }

func handleError(w io.Writer, err error) {
	styles := present.StderrStyles()
	format := "\n%s\n\n"

	var ferr flagParseError
	if errors.As(err, &ferr) {
		args := []any{
			fmt.Sprintf(
				"Check out %s %s",
				styles.InlineCode.Render("threadline -h"),
				styles.Comment.Render("for help."),
			),
			fmt.Sprintf(
				ferr.ReasonFormat(),
				styles.InlineCode.Render(ferr.Flag()),
			),
		}
		fmt.Fprintf(w, format+"%s\n\n", args...)
		return
	}

	var merr errs.Error
	if errors.As(err, &merr) && merr.Reason != "" {
		formatArgs := []any{styles.ErrPadding.Render(styles.ErrorHeader.String(), merr.Reason)}
		if merr.Err != nil && !errors.Is(merr.Err, huh.ErrUserAborted) {
			format += "%s\n\n"
			formatArgs = append(formatArgs, styles.ErrPadding.Render(styles.ErrorDetails.Render(merr.Err.Error())))
		}
		fmt.Fprintf(w, format, formatArgs...)
		return
	}

	fmt.Fprintf(w, format, styles.ErrPadding.Render(styles.ErrorDetails.Render(err.Error())))
}
