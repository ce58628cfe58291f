package routererr

// ToHTTP converts err into a status code and response body. Any error
// outside the taxonomy is reported as an internal error with a generic
// detail message so internals never leak to a client.
func ToHTTP(err error) (int, Status) {
	e := FromError(err)
	return int(e.Code), e.Status
}

// Detail renders the {"detail": "..."} envelope required by SPEC_FULL.md §7.
func Detail(err error) map[string]string {
	return map[string]string{"detail": Message(err)}
}
