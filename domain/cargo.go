package domain

// CargoKind は取引可能な貨物の種別
type CargoKind string

const (
	CargoFood        CargoKind = "food"
	CargoFuel        CargoKind = "fuel"
	CargoElectronics CargoKind = "electronics"
	CargoWeapons     CargoKind = "weapons"
	CargoArtifacts   CargoKind = "artifacts"
	CargoMaterials   CargoKind = "materials"
)

// CargoKinds は全貨物種別の一覧です。乱数による抽選に使用します。
var CargoKinds = []CargoKind{
	CargoFood,
	CargoFuel,
	CargoElectronics,
	CargoWeapons,
	CargoArtifacts,
	CargoMaterials,
}

// Valid は既知の貨物種別かどうかを返します。
func (c CargoKind) Valid() bool {
	for _, k := range CargoKinds {
		if c == k {
			return true
		}
	}
	return false
}

// Manifest は貨物種別ごとの数量を表します。空行（数量0以下）は保持しません。
type Manifest map[CargoKind]int

// Total は積載量の合計を返します。
func (m Manifest) Total() int {
	total := 0
	for _, qty := range m {
		total += qty
	}
	return total
}

// Add は数量を加算し、0以下になった行を取り除きます。
func (m Manifest) Add(kind CargoKind, delta int) {
	next := m[kind] + delta
	if next <= 0 {
		delete(m, kind)
		return
	}
	m[kind] = next
}

// Clone はマニフェストの複製を返します。nilは空として扱います。
func (m Manifest) Clone() Manifest {
	cp := make(Manifest, len(m))
	for kind, qty := range m {
		cp[kind] = qty
	}
	return cp
}
