package tk103

import "strconv"

// statusWord interpreta una palabra binaria que llega con el bit menos
// significativo primero: se invierte el texto antes de parsear.
func statusWord(s string) (uint64, error) {
	r := []byte(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return strconv.ParseUint(string(r), 2, 64)
}

func bit(word uint64, index int) bool {
	return word&(1<<uint(index)) != 0
}
