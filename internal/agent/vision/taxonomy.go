package vision

import "strings"

// labels is the closed output set of the plant disease classifier.
var labels = []string{
	"Bệnh bạc lá cây lúa",
	"Bệnh cháy lá cây ngô phía Bắc",
	"Bệnh nấm phấn trắng trên cây bí",
	"Nhện đỏ hai đốm cây cà chua",
	"Virus vàng xoăn lá cây cà chua",
	"bệnh cháy lá cây lúa",
	"bệnh cháy lá sớm trên cây cà chua",
	"bệnh ghẻ trên cây táo",
	"bệnh gỉ sắt trên cây ngô",
	"bệnh mốc sướng sớm cây khoai tây",
	"bệnh phấn trắng cây chery",
	"bệnh sương mai cây khoai tây",
	"bệnh thối đen cây nho",
	"bệnh đạo ôn cây lúa",
	"bệnh đốm lá Septoria cây cà chua",
	"bệnh đốm lá xám cây ngô",
	"bệnh đốm nâu trên cây lúa",
	"bọ cánh cứng gây hại cho cây lúa",
	"cháy bìa lá cây lúa",
	"cháy lá cây dâu tây",
	"cây cà chua khỏe mạnh",
	"cây dâu tây lành mạnh",
	"cây khoai tây khỏe mạnh",
	"cây lúa khỏe mạnh",
	"cây mâm xôi khỏe mạnh",
	"cây ngô khỏe mạnh",
	"cây nho khỏe mạnh",
	"cây táo khỏe mạnh",
	"cây việt quất khỏe mạnh",
	"cây đào khỏe mạnh",
	"cây đậu nành khỏe mạnh",
	"cây ớt chuông khỏe mạnh",
	"nấm lá cây cà chua",
	"quả chery khỏe mạnh",
	"rỉ táo tuyết trùng cây táo",
	"sởi đen cây nho",
	"thối đen trên cây táo",
	"virus khảm cây cà chua",
	"vàng lá gân xanh cây cam",
	"Đốm mục tiêu trên cây cà chua",
	"đốm lá cây nho",
	"đốm vi khuẩn cây cà chua",
	"đốm vi khuẩn cây đào",
	"đốm vi khuẩn cây ớt chuông",
	"ốc sương trên cây cà chua",
}

var healthySuffixes = []string{"khỏe mạnh", "lành mạnh"}

const defaultPlantType = "Cây"

var labelIndex = func() map[string]string {
	m := make(map[string]string, len(labels))
	for _, l := range labels {
		m[normalizeLabel(l)] = l
	}
	return m
}()

// Labels returns a copy of the taxonomy.
func Labels() []string {
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}

// CanonicalLabel maps a classifier label onto the taxonomy. Matching ignores
// case and repeated whitespace.
func CanonicalLabel(label string) (string, bool) {
	l, ok := labelIndex[normalizeLabel(label)]
	return l, ok
}

// IsHealthy reports whether the label denotes a healthy plant.
func IsHealthy(label string) bool {
	n := normalizeLabel(label)
	for _, s := range healthySuffixes {
		if strings.HasSuffix(n, s) {
			return true
		}
	}
	return false
}

// PlantType derives the plant name from a label, e.g. "bệnh đạo ôn cây lúa"
// gives "cây lúa". Labels without a plant name give "Cây".
func PlantType(label string) string {
	n := strings.Join(strings.Fields(label), " ")
	lower := strings.ToLower(n)
	i := strings.LastIndex(lower, "cây ")
	if i < 0 {
		return defaultPlantType
	}
	plant := lower[i:]
	for _, s := range healthySuffixes {
		plant = strings.TrimSuffix(plant, " "+s)
	}
	plant = strings.TrimSpace(plant)
	if plant == "cây" || plant == "" {
		return defaultPlantType
	}
	return plant
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
