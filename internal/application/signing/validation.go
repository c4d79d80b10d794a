package signing

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jhoicas/siga-gateway/internal/domain"
)

// Límites de los datos del firmante.
const (
	maxPersonIdentifier   = 30
	maxMobileIDMessage    = 40
	maxSmartIDMessage     = 60
	maxRoleLength         = 100
	maxPlaceFieldLength   = 100
	mobileIDLanguageChars = 3
	countryCodeChars      = 2
)

var phoneNoPattern = regexp.MustCompile(`^\+[0-9]{7,15}$`)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidInput}, args...)...)
}

func validatePersonIdentifier(id string) error {
	if strings.TrimSpace(id) == "" || utf8.RuneCountInString(id) > maxPersonIdentifier {
		return invalid("identificador de persona inválido")
	}
	return nil
}

func validateCountry(country string) error {
	if len(strings.TrimSpace(country)) != countryCodeChars {
		return invalid("código de país %q inválido", country)
	}
	return nil
}

func validatePhoneNo(phone string) error {
	if !phoneNoPattern.MatchString(phone) {
		return invalid("número de teléfono inválido")
	}
	return nil
}

func validateLanguage(lang string) error {
	if len(strings.TrimSpace(lang)) != mobileIDLanguageChars {
		return invalid("idioma Mobile-ID %q inválido", lang)
	}
	return nil
}

func validateDisplayText(text string, max int) error {
	if utf8.RuneCountInString(text) > max {
		return invalid("el mensaje a mostrar excede %d caracteres", max)
	}
	return nil
}

func validateRolesAndPlace(roles []string, place ProductionPlace) error {
	for _, r := range roles {
		if strings.TrimSpace(r) == "" || utf8.RuneCountInString(r) > maxRoleLength {
			return invalid("rol de firmante inválido")
		}
	}
	for _, f := range []string{place.City, place.StateOrProvince, place.PostalCode, place.CountryName} {
		if utf8.RuneCountInString(f) > maxPlaceFieldLength {
			return invalid("lugar de firma excede %d caracteres", maxPlaceFieldLength)
		}
	}
	return nil
}
