package enums

// ItemType identifies which inventory a payment funds.
type ItemType string

const (
	ItemTypeMessPlan    ItemType = "mess_plan"
	ItemTypeRoomBooking ItemType = "room_booking"
	ItemTypeService     ItemType = "service"
)

var itemTypes = domain[ItemType]{"item type", []ItemType{ItemTypeMessPlan, ItemTypeRoomBooking, ItemTypeService}}

func (t ItemType) String() string { return string(t) }

func (t ItemType) IsValid() bool { return itemTypes.has(t) }

func ParseItemType(raw string) (ItemType, error) { return itemTypes.parse(raw) }
