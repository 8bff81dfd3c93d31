package utils

import (
	"math"
	"math/rand"
	"os"

	"github.com/storyloop/dailystories/utils/dotenv"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// ContainsString returns true iff the provided string slice hay contains string
// needle.
func ContainsString(hay []string, needle string) bool {
	for _, str := range hay {
		if str == needle {
			return true
		}
	}
	return false
}

func Min(a int, b int) int {
	if a < b {
		return a
	}
	return b
}

// RandomAlphabetString generates a random lowercase string of given length.
func RandomAlphabetString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// Round2 rounds to 2 decimal places, the precision stored for averages.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func IsProdEnv() bool {
	return os.Getenv("DAILYSTORIES_ENV") == dotenv.ProdEnv
}
