package bindauth

// maskSensitiveData masks usernames and DNs before they reach log output.
// Short values are fully masked; longer ones keep two characters of context
// at each end.
func maskSensitiveData(data string) string {
	if len(data) <= 4 {
		return "***"
	}
	return data[:2] + "***" + data[len(data)-2:]
}
