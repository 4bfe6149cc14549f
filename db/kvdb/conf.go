package kvdb

type Conf struct {
	Type      string `json:"type"` // redis | memory
	Host      string `json:"host"`
	Port      int    `json:"port"`
	PW        string `json:"pw"`
	DB        int    `json:"db"`         // optional db number e.g. redis
	KeyPrefix string `json:"key_prefix"` // namespace for every key this app writes
}
