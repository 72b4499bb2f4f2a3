package extraction

import "time"

// Load is one structured freight offer extracted from an ad.
type Load struct {
	Origin          string
	Destination     string
	CargoType       string
	CargoType2      string
	Weight          *float64
	Volume          *float64
	Fare            *float64
	Price           *int64
	Prepayment      *int64
	HasPrepayment   bool
	PaymentType     string
	Goods           string
	ReadyDate       *time.Time
	Refrigerated    bool
	LoadingSide     string
	CustomsLocation string
	Hazardous       bool
	Dagruz          bool
	RequiredTrucks  *int
	Phone           string
}

// Vehicle is one structured truck availability offer.
type Vehicle struct {
	Origin          string
	Destinations    []string
	CargoType       string
	CargoType2      string
	Weight          *float64
	Volume          *float64
	AvailableTrucks *int
	Hazardous       bool
	Dagruz          bool
	Phone           string
}

// LoadResult is what one input text produced.
type LoadResult struct {
	Index      int
	Phone      string
	Loads      []Load
	LowQuality bool
}

type VehicleResult struct {
	Index    int
	Phone    string
	Vehicles []Vehicle
}

type loadResponse struct {
	Messages []loadMessage `json:"messages"`
}

type loadMessage struct {
	ID    int        `json:"id"`
	Phone *string    `json:"phone"`
	Loads []*rawLoad `json:"loads"`
}

type rawLoad struct {
	Fare                     *float64 `json:"fare"`
	Origin                   *string  `json:"origin"`
	Destination              *string  `json:"destination"`
	PaymentType              *string  `json:"paymentType"`
	HasPrepayment            *bool    `json:"hasPrepayment"`
	PrepaymentAmount         *float64 `json:"prepaymentAmount"`
	TruckType                []string `json:"truckType"`
	RequiredVehicleCount     *float64 `json:"requiredVehicleCount"`
	Weight                   *float64 `json:"weight"`
	Volume                   *float64 `json:"volume"`
	Load                     *string  `json:"load"`
	LoadReadyDate            *string  `json:"loadReadyDate"`
	HasRefrigeratorMode      *bool    `json:"hasRefrigeratorMode"`
	LoadingSide              *string  `json:"loadingSide"`
	CustomsClearanceLocation *string  `json:"customsClearanceLocation"`
	IsLoadHazardous          *bool    `json:"isLoadHazardous"`
}

type vehicleResponse struct {
	Messages []vehicleMessage `json:"messages"`
}

type vehicleMessage struct {
	ID       int           `json:"id"`
	Phone    *string       `json:"phone"`
	Vehicles []*rawVehicle `json:"vehicles"`
}

type rawVehicle struct {
	Origin                *string  `json:"origin"`
	Destinations          []string `json:"destinations"`
	TruckType             []string `json:"truckType"`
	AvailableVehicleCount *float64 `json:"availableVehicleCount"`
	CargoWeight           *float64 `json:"cargoWeight"`
	CargoVolume           *float64 `json:"cargoVolume"`
	IsLoadHazardous       *bool    `json:"isLoadHazardous"`
}

// Err reports why a result must not be persisted.
func (r LoadResult) Err() error {
	if r.LowQuality {
		return ErrLowQuality
	}
	return nil
}
