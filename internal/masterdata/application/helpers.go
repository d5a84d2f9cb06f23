package application

import "settlementcore/internal/ids"

func parseGSRN(value string) (ids.GSRN, error) {
	return ids.NewGSRN(value)
}
