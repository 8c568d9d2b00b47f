package mtproto

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// ErrSignupNotSupported indicates that signup is not supported.
var ErrSignupNotSupported = errors.New("signup not supported")

const minPhoneLength = 10

func (r *Reader) authFlow() auth.Flow {
	return auth.NewFlow(r, auth.SendCodeOptions{})
}

func (r *Reader) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return prompt("Enter code: ")
}

func (r *Reader) Phone(_ context.Context) (string, error) {
	phone := r.cfg.Phone
	if phone == "" {
		var err error

		if phone, err = prompt("Enter phone: "); err != nil {
			return "", err
		}
	}

	phone = sanitizePhone(phone)
	r.logger.Info().Str("phone", maskPhone(phone)).Msg("using phone number")

	if len(phone) < minPhoneLength {
		r.logger.Warn().Int("length", len(phone)).Msg("phone number seems too short, include the country code (e.g. +1...)")
	}

	return phone, nil
}

func (r *Reader) Password(_ context.Context) (string, error) {
	if r.cfg.Password != "" {
		return strings.TrimSpace(r.cfg.Password), nil
	}

	return prompt("Enter 2FA password: ")
}

func (r *Reader) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (r *Reader) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, ErrSignupNotSupported
}

func prompt(label string) (string, error) {
	fmt.Print(label)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}

	return strings.TrimSpace(line), nil
}

func sanitizePhone(phone string) string {
	var sb strings.Builder

	phone = strings.TrimSpace(phone)

	if strings.HasPrefix(phone, "+") {
		sb.WriteByte('+')

		phone = phone[1:]
	}

	for _, char := range phone {
		if char >= '0' && char <= '9' {
			sb.WriteRune(char)
		}
	}

	return sb.String()
}

func maskPhone(phone string) string {
	if len(phone) < 7 {
		return "****"
	}

	return phone[:3] + "****" + phone[len(phone)-2:]
}
