package consts

// EventsChannel is the redis pub/sub channel carrying event frames between
// instances.
const EventsChannel = "syncboard:events"
