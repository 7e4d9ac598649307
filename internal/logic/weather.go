package logic

// HumidityWeight is the humidity coefficient of the weather index.
const HumidityWeight = 0.05

// WeatherIndex combines temperature (°F) and relative humidity (%) into a
// single scalar used for fire detection.
func WeatherIndex(temperatureF, humidityPct float64) float64 {
	return temperatureF + HumidityWeight*humidityPct
}

// CelsiusToFahrenheit converts a DHT reading to the policy's unit.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}
