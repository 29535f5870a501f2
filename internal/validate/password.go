package validate

import (
	"fmt"
	"regexp"
	"strings"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultMinPasswordLength = 8
	DefaultMaxPasswordLength = 128
	DefaultMinStrengthScore  = 2
	DefaultBcryptCost        = 12

	passwordHistoryDepth = 5
)

// PasswordPolicy controls length, composition and strength requirements.
type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	RequireLowercase bool
	RequireUppercase bool
	RequireDigit     bool
	RequireSymbol    bool
	MinStrengthScore int
	BcryptCost       int
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        DefaultMinPasswordLength,
		MaxLength:        DefaultMaxPasswordLength,
		RequireLowercase: true,
		RequireUppercase: true,
		RequireDigit:     true,
		RequireSymbol:    true,
		MinStrengthScore: DefaultMinStrengthScore,
		BcryptCost:       DefaultBcryptCost,
	}
}

// StrengthResult reports the outcome of a password strength check.
type StrengthResult struct {
	OK        bool
	Message   string
	Score     int
	CrackTime string
}

var (
	lowercaseRe = regexp.MustCompile(`[a-z]`)
	uppercaseRe = regexp.MustCompile(`[A-Z]`)
	digitRe     = regexp.MustCompile(`[0-9]`)
	symbolRe    = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)

	weakPatternRes = []*regexp.Regexp{
		regexp.MustCompile(`(012|123|234|345|456|567|678|789|890)`),
		regexp.MustCompile(`(abc|bcd|cde|def|efg|fgh|ghi|hij|ijk|jkl|klm|lmn|mno|nop|opq|pqr|qrs|rst|stu|tuv|uvw|vwx|wxy|xyz)`),
		regexp.MustCompile(`(qwe|asd|zxc|qaz|wsx|edc)`),
	}
)

// CheckPasswordStrength validates length, character composition, known weak
// patterns and holistic strength. Composition violations accumulate into a
// single message listing every missing class.
func (p PasswordPolicy) CheckPasswordStrength(password string) StrengthResult {
	if password == "" {
		return StrengthResult{Message: "password is required"}
	}
	if len(password) < p.MinLength {
		return StrengthResult{Message: fmt.Sprintf("password must be at least %d characters long", p.MinLength)}
	}
	if len(password) > p.MaxLength {
		return StrengthResult{Message: fmt.Sprintf("password must not exceed %d characters", p.MaxLength)}
	}

	var missing []string
	if p.RequireLowercase && !lowercaseRe.MatchString(password) {
		missing = append(missing, "at least one lowercase letter")
	}
	if p.RequireUppercase && !uppercaseRe.MatchString(password) {
		missing = append(missing, "at least one uppercase letter")
	}
	if p.RequireDigit && !digitRe.MatchString(password) {
		missing = append(missing, "at least one digit")
	}
	if p.RequireSymbol && !symbolRe.MatchString(password) {
		missing = append(missing, `at least one special character (!@#$%^&*(),.?":{}|<>)`)
	}
	if len(missing) > 0 {
		return StrengthResult{Message: "password must contain " + strings.Join(missing, ", ")}
	}

	lowered := strings.ToLower(password)
	if hasRepeatedRun(lowered) {
		return StrengthResult{Message: "password contains common patterns that are easy to guess"}
	}
	for _, re := range weakPatternRes {
		if re.MatchString(lowered) {
			return StrengthResult{Message: "password contains common patterns that are easy to guess"}
		}
	}

	score, crackTime, ok := estimateStrength(password)
	if !ok {
		// The estimator must never block signup.
		return StrengthResult{OK: true, Message: "password meets basic requirements"}
	}
	if score < p.MinStrengthScore {
		return StrengthResult{
			Message: fmt.Sprintf("password is too weak: estimated crack time %s. Suggestions: add another word or two; avoid predictable substitutions", crackTime),
			Score:   score,
		}
	}

	return StrengthResult{OK: true, Message: "password is strong", Score: score, CrackTime: crackTime}
}

// hasRepeatedRun reports whether s contains the same character four or more
// times in a row, the check the backreference pattern `(.)\1{3,}` expressed
// before RE2's lack of backreference support forced it out of weakPatternRes.
func hasRepeatedRun(s string) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev && r != '\n' {
			run++
			if run >= 4 {
				return true
			}
		} else {
			prev, run = r, 1
		}
	}
	return false
}

// estimateStrength is a package variable so tests can stub the estimator.
var estimateStrength = func(password string) (score int, crackTime string, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	strength := zxcvbn.PasswordStrength(password, nil)
	return strength.Score, strength.CrackTimeDisplay, true
}

// HashPassword hashes with bcrypt at the policy's cost.
func (p PasswordPolicy) HashPassword(password string) (string, error) {
	cost := p.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. Malformed hashes
// verify as false rather than erroring.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CheckPasswordReuse reports whether password matches any of the most recent
// historical hashes.
func CheckPasswordReuse(password string, previousHashes []string) bool {
	if len(previousHashes) > passwordHistoryDepth {
		previousHashes = previousHashes[len(previousHashes)-passwordHistoryDepth:]
	}

	for _, old := range previousHashes {
		if VerifyPassword(password, old) {
			return true
		}
	}

	return false
}
